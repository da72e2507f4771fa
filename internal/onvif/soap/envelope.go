// Package soap implements the SOAP 1.2 envelope, fault, and WS-UsernameToken
// machinery shared by every ONVIF service this gateway exposes. It is kept
// close to the teacher's own internal/onvif/soap package: this protocol
// layer is camera-agnostic and needed verbatim regardless of domain.
package soap

import (
	"encoding/xml"
	"fmt"
	"io"
)

// Envelope represents a SOAP envelope.
type Envelope struct {
	XMLName xml.Name `xml:"http://www.w3.org/2003/05/soap-envelope Envelope"`
	Header  *Header  `xml:"Header,omitempty"`
	Body    Body     `xml:"Body"`
}

// Header represents a SOAP header.
type Header struct {
	Security *Security `xml:"http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd Security"`
}

// Body represents a SOAP body, captured as raw XML so the action name and
// payload can be parsed separately.
type Body struct {
	Content []byte `xml:",innerxml"`
}

// ParseEnvelope parses a SOAP envelope from XML.
func ParseEnvelope(r io.Reader) (*Envelope, error) {
	var env Envelope
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode SOAP envelope: %w", err)
	}
	return &env, nil
}

// MarshalEnvelope wraps body in a SOAP envelope declaring every ONVIF
// namespace a Device/Media/Media2 response might reference.
func MarshalEnvelope(body interface{}) ([]byte, error) {
	envelope := struct {
		XMLName  xml.Name `xml:"http://www.w3.org/2003/05/soap-envelope Envelope"`
		XmlnsTds string   `xml:"xmlns:tds,attr"`
		XmlnsTrt string   `xml:"xmlns:trt,attr"`
		XmlnsTr2 string   `xml:"xmlns:tr2,attr"`
		XmlnsTt  string   `xml:"xmlns:tt,attr"`
		Body     struct {
			Content interface{} `xml:",any"`
		} `xml:"Body"`
	}{
		XmlnsTds: "http://www.onvif.org/ver10/device/wsdl",
		XmlnsTrt: "http://www.onvif.org/ver10/media/wsdl",
		XmlnsTr2: "http://www.onvif.org/ver20/media/wsdl",
		XmlnsTt:  "http://www.onvif.org/ver10/schema",
	}
	envelope.Body.Content = body

	output, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal SOAP envelope: %w", err)
	}
	return append([]byte(xml.Header), output...), nil
}

// GetAction returns the first element name inside the SOAP Body -- the
// ONVIF action being invoked.
func GetAction(body []byte) (string, error) {
	var env Envelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("parse SOAP envelope: %w", err)
	}
	var probe struct {
		XMLName xml.Name
	}
	if err := xml.Unmarshal(env.Body.Content, &probe); err != nil {
		return "", fmt.Errorf("parse SOAP body action: %w", err)
	}
	return probe.XMLName.Local, nil
}

// GetBodyContent returns the raw inner XML of the SOAP Body.
func GetBodyContent(body []byte) ([]byte, error) {
	var env Envelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse SOAP envelope: %w", err)
	}
	return env.Body.Content, nil
}
