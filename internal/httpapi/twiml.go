package httpapi

import (
	"encoding/xml"
	"log/slog"
	"net/http"
)

// TwiML shapes for the incoming-call webhook response. Only the
// stream-connect verb is generated; everything else the provider
// supports is out of scope here.

type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// handleIncomingCall answers the provider's call webhook with a
// stream-connect document pointing back at the media endpoint. The
// caller number and opening utterance ride along as custom parameters
// so the media handler gets them in the start event.
func (s *Server) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad webhook form", http.StatusBadRequest)
		return
	}
	caller := r.PostFormValue("From")
	callSID := r.PostFormValue("CallSid")

	s.logger.Info("incoming call",
		slog.String("call_sid", callSID),
		slog.String("from", caller))

	doc := twimlResponse{
		Connect: &twimlConnect{
			Stream: twimlStream{
				URL: "wss://" + s.cfg.PublicHost + "/media-stream",
				Parameters: []twimlParameter{
					{Name: "firstMessage", Value: s.cfg.FirstMessage},
					{Name: "callerNumber", Value: caller},
				},
			},
		},
	}

	body, err := xml.Marshal(doc)
	if err != nil {
		http.Error(w, "twiml generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}
