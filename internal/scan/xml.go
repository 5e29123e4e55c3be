package scan

import (
	"bytes"
	"encoding/xml"
	"time"

	"github.com/scanward/scanward/internal/errors"
)

// resultXML is the root element of the stored scan artifact.
type resultXML struct {
	XMLName   xml.Name  `xml:"scanresult"`
	Target    string    `xml:"target,attr"`
	StartTime string    `xml:"start_time,attr"`
	EndTime   string    `xml:"end_time,attr"`
	Duration  string    `xml:"duration,attr"`
	Stats     statsXML  `xml:"stats"`
	Hosts     []hostXML `xml:"host"`
}

type statsXML struct {
	Up    int `xml:"up,attr"`
	Down  int `xml:"down,attr"`
	Total int `xml:"total,attr"`
}

type hostXML struct {
	Address  string    `xml:"address"`
	Hostname string    `xml:"hostname,omitempty"`
	Status   string    `xml:"status"`
	Ports    []portXML `xml:"ports>port,omitempty"`
}

type portXML struct {
	Number   uint16 `xml:"number,attr"`
	Protocol string `xml:"protocol,attr"`
	State    string `xml:"state"`
	Service  string `xml:"service,omitempty"`
	Product  string `xml:"product,omitempty"`
	Version  string `xml:"version,omitempty"`
}

// MarshalResult renders a scan result as the indented XML document the
// result store persists.
func MarshalResult(result *Result) ([]byte, error) {
	if result == nil {
		return nil, errors.NewJobError(errors.CodeValidation, "cannot marshal nil result")
	}

	doc := &resultXML{
		Target:    result.Target,
		StartTime: result.StartTime.UTC().Format(time.RFC3339),
		EndTime:   result.EndTime.UTC().Format(time.RFC3339),
		Duration:  result.Duration.String(),
		Stats: statsXML{
			Up:    result.Stats.Up,
			Down:  result.Stats.Down,
			Total: result.Stats.Total,
		},
		Hosts: make([]hostXML, len(result.Hosts)),
	}

	for i, host := range result.Hosts {
		h := hostXML{
			Address:  host.Address,
			Hostname: host.Hostname,
			Status:   host.Status,
			Ports:    make([]portXML, len(host.Ports)),
		}
		for j, port := range host.Ports {
			h.Ports[j] = portXML{
				Number:   port.Number,
				Protocol: port.Protocol,
				State:    port.State,
				Service:  port.Service,
				Product:  port.Product,
				Version:  port.Version,
			}
		}
		doc.Hosts[i] = h
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	encoder := xml.NewEncoder(&buf)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return nil, errors.WrapJobError(errors.CodeUnknown, "failed to encode scan result", err)
	}
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

// UnmarshalResult parses a stored scan artifact back into a result.
func UnmarshalResult(data []byte) (*Result, error) {
	var doc resultXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapJobError(errors.CodeUnknown, "failed to decode scan artifact", err)
	}

	result := &Result{
		Target: doc.Target,
		Stats: HostStats{
			Up:    doc.Stats.Up,
			Down:  doc.Stats.Down,
			Total: doc.Stats.Total,
		},
		Hosts: make([]Host, len(doc.Hosts)),
	}
	if ts, err := time.Parse(time.RFC3339, doc.StartTime); err == nil {
		result.StartTime = ts
	}
	if ts, err := time.Parse(time.RFC3339, doc.EndTime); err == nil {
		result.EndTime = ts
	}
	if d, err := time.ParseDuration(doc.Duration); err == nil {
		result.Duration = d
	}

	for i, h := range doc.Hosts {
		host := Host{
			Address:  h.Address,
			Hostname: h.Hostname,
			Status:   h.Status,
			Ports:    make([]Port, len(h.Ports)),
		}
		for j, p := range h.Ports {
			host.Ports[j] = Port{
				Number:   p.Number,
				Protocol: p.Protocol,
				State:    p.State,
				Service:  p.Service,
				Product:  p.Product,
				Version:  p.Version,
			}
		}
		result.Hosts[i] = host
	}

	return result, nil
}
