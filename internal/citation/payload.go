package citation

import (
	"encoding/json"
	"fmt"
)

// Payload is the chat answer body returned by the assistant backend
type Payload struct {
	Message   string  `json:"message"`
	Citations []Group `json:"citations"`
}

// knowledge-base citation shape: the insertion point is the end of the generated span
type kbCitation struct {
	GeneratedResponsePart *struct {
		TextResponsePart struct {
			Text string `json:"text"`
			Span struct {
				Start int `json:"start"`
				End   int `json:"end"`
			} `json:"span"`
		} `json:"textResponsePart"`
	} `json:"generatedResponsePart"`
	RetrievedReferences []struct {
		Content struct {
			Text string `json:"text"`
		} `json:"content"`
		Location struct {
			Type       string `json:"type"`
			S3Location struct {
				URI string `json:"uri"`
			} `json:"s3Location"`
			WebLocation struct {
				URL string `json:"url"`
			} `json:"webLocation"`
		} `json:"location"`
		Metadata map[string]interface{} `json:"metadata"`
	} `json:"retrievedReferences"`
}

// UnmarshalJSON accepts both {references, end_offset} and the knowledge-base
// {generatedResponsePart, retrievedReferences} citation shapes.
func (g *Group) UnmarshalJSON(data []byte) error {
	var plain struct {
		References []Reference `json:"references"`
		EndOffset  *int        `json:"end_offset"`
	}
	if err := json.Unmarshal(data, &plain); err != nil {
		return fmt.Errorf("decode citation group: %w", err)
	}
	if plain.EndOffset != nil {
		g.References = plain.References
		g.EndOffset = *plain.EndOffset
		return nil
	}

	var kb kbCitation
	if err := json.Unmarshal(data, &kb); err != nil {
		return fmt.Errorf("decode knowledge-base citation: %w", err)
	}
	if kb.GeneratedResponsePart == nil {
		// Neither shape carries an offset; treat it as a group at the start of the text.
		g.References = plain.References
		g.EndOffset = 0
		return nil
	}

	g.EndOffset = kb.GeneratedResponsePart.TextResponsePart.Span.End
	g.References = make([]Reference, 0, len(kb.RetrievedReferences))
	for _, rr := range kb.RetrievedReferences {
		locator := rr.Location.S3Location.URI
		if locator == "" {
			locator = rr.Location.WebLocation.URL
		}
		ref := Reference{
			Excerpt:  rr.Content.Text,
			Locator:  locator,
			Metadata: rr.Metadata,
		}
		if id, ok := rr.Metadata["document_id"].(string); ok {
			ref.DocumentID = id
		}
		g.References = append(g.References, ref)
	}
	return nil
}

// DecodePayload parses a chat answer body
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decode chat payload: %w", err)
	}
	return p, nil
}
