package twilio

import (
	"encoding/xml"
	"net/http"
)

// MessagingResponse is a TwiML document answering a messaging webhook.
type MessagingResponse struct {
	XMLName  xml.Name `xml:"Response"`
	Messages []string `xml:"Message,omitempty"`
}

// WriteTwiML writes resp as a text/xml body with status 200.
func WriteTwiML(w http.ResponseWriter, resp MessagingResponse) error {
	body, err := xml.Marshal(resp)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(append([]byte(xml.Header), body...))
	return err
}
