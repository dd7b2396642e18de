package registry

import (
	"encoding/json"
	"time"
)

// resultEnvelope is the Registry API response shape: a results array plus an
// optional meta block with paging totals.
type resultEnvelope struct {
	Meta struct {
		Results struct {
			Skip  int `json:"skip"`
			Limit int `json:"limit"`
			Total int `json:"total"`
		} `json:"results"`
	} `json:"meta"`
	Results []json.RawMessage `json:"results"`
}

func decodeEnvelope(payload []byte) (*resultEnvelope, error) {
	var env resultEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// upstreamErrorMessage extracts the message from a non-2xx JSON error body,
// or "" when the body is not the documented error shape.
func upstreamErrorMessage(body []byte) string {
	var doc struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	return doc.Error.Message
}

// DeviceRecord is one cleared device from the predicate search or direct
// lookup endpoints. Immutable value object; zero ClearanceDate means the
// upstream date was absent or unparseable.
type DeviceRecord struct {
	Identifier    string
	Name          string
	IntendedUse   string
	ProductCode   string
	Applicant     string
	ClearanceDate time.Time
}

type deviceDoc struct {
	KNumber      string `json:"k_number"`
	DeviceName   string `json:"device_name"`
	IntendedUse  string `json:"statement_or_summary"`
	ProductCode  string `json:"product_code"`
	Applicant    string `json:"applicant"`
	DecisionDate string `json:"decision_date"`
}

// parseDeviceRecord decodes one results entry; ok is false when mandatory
// fields (identifier, name) are missing and the entry should be discarded.
func parseDeviceRecord(raw json.RawMessage) (DeviceRecord, bool) {
	var doc deviceDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return DeviceRecord{}, false
	}
	if doc.KNumber == "" || doc.DeviceName == "" {
		return DeviceRecord{}, false
	}
	return DeviceRecord{
		Identifier:    doc.KNumber,
		Name:          doc.DeviceName,
		IntendedUse:   doc.IntendedUse,
		ProductCode:   doc.ProductCode,
		Applicant:     doc.Applicant,
		ClearanceDate: parseRegistryDate(doc.DecisionDate),
	}, true
}

// ClassificationRecord is one device classification entry.
type ClassificationRecord struct {
	ProductCode      string
	Name             string
	DeviceClass      string
	RegulationNumber string
	MedicalSpecialty string
}

type classificationDoc struct {
	ProductCode      string `json:"product_code"`
	DeviceName       string `json:"device_name"`
	DeviceClass      string `json:"device_class"`
	RegulationNumber string `json:"regulation_number"`
	MedicalSpecialty string `json:"medical_specialty_description"`
}

func parseClassificationRecord(raw json.RawMessage) (ClassificationRecord, bool) {
	var doc classificationDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ClassificationRecord{}, false
	}
	if doc.ProductCode == "" || doc.DeviceName == "" {
		return ClassificationRecord{}, false
	}
	return ClassificationRecord{
		ProductCode:      doc.ProductCode,
		Name:             doc.DeviceName,
		DeviceClass:      doc.DeviceClass,
		RegulationNumber: doc.RegulationNumber,
		MedicalSpecialty: doc.MedicalSpecialty,
	}, true
}

// AdverseEventRecord is one adverse event report.
type AdverseEventRecord struct {
	Identifier   string
	DeviceName   string
	EventType    string
	DateReceived time.Time
}

type adverseEventDoc struct {
	ReportNumber string `json:"report_number"`
	EventType    string `json:"event_type"`
	DateReceived string `json:"date_received"`
	Devices      []struct {
		BrandName   string `json:"brand_name"`
		GenericName string `json:"generic_name"`
	} `json:"device"`
}

func parseAdverseEventRecord(raw json.RawMessage) (AdverseEventRecord, bool) {
	var doc adverseEventDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return AdverseEventRecord{}, false
	}

	name := ""
	if len(doc.Devices) > 0 {
		name = doc.Devices[0].BrandName
		if name == "" {
			name = doc.Devices[0].GenericName
		}
	}
	if doc.ReportNumber == "" || name == "" {
		return AdverseEventRecord{}, false
	}
	return AdverseEventRecord{
		Identifier:   doc.ReportNumber,
		DeviceName:   name,
		EventType:    doc.EventType,
		DateReceived: parseRegistryDate(doc.DateReceived),
	}, true
}

// parseRegistryDate accepts the two date layouts the Registry emits.
func parseRegistryDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
