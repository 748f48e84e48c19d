package api

import "encoding/json"

// envelope is the backend's error wrapper. Most handlers send
// {"error":{"code","message"}}; a few send {"error":"text"} or
// {"message":"text"}.
type envelope struct {
	Code    string
	Message string
}

func parseEnvelope(data []byte) envelope {
	var raw struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return envelope{}
	}

	var env envelope
	if len(raw.Error) > 0 {
		var obj struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		var text string
		switch {
		case json.Unmarshal(raw.Error, &obj) == nil:
			env.Code = obj.Code
			env.Message = obj.Message
		case json.Unmarshal(raw.Error, &text) == nil:
			env.Message = text
		}
	}
	if env.Message == "" {
		env.Message = raw.Message
	}
	return env
}
