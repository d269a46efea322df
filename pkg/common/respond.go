package common

import (
	"encoding/json"
	"log"
	"net/http"
)

func WriteMsg(w http.ResponseWriter, msg string, status int) {
	WriteRespJSON(w, status, map[string]string{"message": msg})
}

func WriteRespJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("common: can't encode response, %v", err)
	}
}
