package registry

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeEnvelope(t *testing.T) {
	payload := []byte(`{
		"meta": {"results": {"skip": 0, "limit": 10, "total": 2}},
		"results": [{"k_number": "K123456"}, {"k_number": "K234567"}]
	}`)

	env, err := decodeEnvelope(payload)
	if err != nil {
		t.Fatalf("decodeEnvelope: %v", err)
	}
	if env.Meta.Results.Total != 2 {
		t.Errorf("total = %d, want 2", env.Meta.Results.Total)
	}
	if len(env.Results) != 2 {
		t.Errorf("results = %d, want 2", len(env.Results))
	}
}

func TestUpstreamErrorMessage(t *testing.T) {
	body := []byte(`{"error": {"code": "NOT_FOUND", "message": "No matches found!"}}`)
	if got := upstreamErrorMessage(body); got != "No matches found!" {
		t.Errorf("message = %q", got)
	}

	if got := upstreamErrorMessage([]byte("<html>gateway timeout</html>")); got != "" {
		t.Errorf("non-JSON body produced %q", got)
	}
	if got := upstreamErrorMessage([]byte(`{"results": []}`)); got != "" {
		t.Errorf("non-error body produced %q", got)
	}
}

func TestParseDeviceRecord(t *testing.T) {
	raw := json.RawMessage(`{
		"k_number": "K123456",
		"device_name": "Pulse Oximeter",
		"statement_or_summary": "Noninvasive monitoring",
		"product_code": "DQA",
		"applicant": "Acme Medical",
		"decision_date": "2019-04-17"
	}`)

	rec, ok := parseDeviceRecord(raw)
	if !ok {
		t.Fatal("record discarded")
	}
	if rec.Identifier != "K123456" || rec.Name != "Pulse Oximeter" || rec.ProductCode != "DQA" {
		t.Errorf("record = %+v", rec)
	}
	want := time.Date(2019, 4, 17, 0, 0, 0, 0, time.UTC)
	if !rec.ClearanceDate.Equal(want) {
		t.Errorf("ClearanceDate = %v, want %v", rec.ClearanceDate, want)
	}
}

func TestParseDeviceRecordDiscardsIncomplete(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing identifier", `{"device_name": "Pulse Oximeter"}`},
		{"missing name", `{"k_number": "K123456"}`},
		{"not an object", `"K123456"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := parseDeviceRecord(json.RawMessage(tt.raw)); ok {
				t.Error("incomplete record accepted")
			}
		})
	}
}

func TestParseDeviceRecordCompactDate(t *testing.T) {
	rec, ok := parseDeviceRecord(json.RawMessage(`{
		"k_number": "K987654",
		"device_name": "Infusion Pump",
		"decision_date": "20210305"
	}`))
	if !ok {
		t.Fatal("record discarded")
	}
	want := time.Date(2021, 3, 5, 0, 0, 0, 0, time.UTC)
	if !rec.ClearanceDate.Equal(want) {
		t.Errorf("ClearanceDate = %v, want %v", rec.ClearanceDate, want)
	}
}

func TestParseDeviceRecordToleratesBadDate(t *testing.T) {
	rec, ok := parseDeviceRecord(json.RawMessage(`{
		"k_number": "K111111",
		"device_name": "Stethoscope",
		"decision_date": "not-a-date"
	}`))
	if !ok {
		t.Fatal("record with bad date discarded")
	}
	if !rec.ClearanceDate.IsZero() {
		t.Errorf("ClearanceDate = %v, want zero", rec.ClearanceDate)
	}
}

func TestParseClassificationRecord(t *testing.T) {
	rec, ok := parseClassificationRecord(json.RawMessage(`{
		"product_code": "DQA",
		"device_name": "Oximeter",
		"device_class": "2",
		"regulation_number": "870.2700",
		"medical_specialty_description": "Cardiovascular"
	}`))
	if !ok {
		t.Fatal("record discarded")
	}
	if rec.DeviceClass != "2" || rec.RegulationNumber != "870.2700" {
		t.Errorf("record = %+v", rec)
	}

	if _, ok := parseClassificationRecord(json.RawMessage(`{"device_class": "2"}`)); ok {
		t.Error("record without product code accepted")
	}
}

func TestParseAdverseEventRecord(t *testing.T) {
	rec, ok := parseAdverseEventRecord(json.RawMessage(`{
		"report_number": "1234567-2020-00001",
		"event_type": "Malfunction",
		"date_received": "20200110",
		"device": [{"brand_name": "Acme Monitor", "generic_name": "patient monitor"}]
	}`))
	if !ok {
		t.Fatal("record discarded")
	}
	if rec.Identifier != "1234567-2020-00001" || rec.DeviceName != "Acme Monitor" {
		t.Errorf("record = %+v", rec)
	}

	// Generic name fills in when the brand name is absent.
	rec, ok = parseAdverseEventRecord(json.RawMessage(`{
		"report_number": "X1",
		"device": [{"generic_name": "patient monitor"}]
	}`))
	if !ok || rec.DeviceName != "patient monitor" {
		t.Errorf("fallback record = %+v, ok = %v", rec, ok)
	}

	if _, ok := parseAdverseEventRecord(json.RawMessage(`{"report_number": "X2"}`)); ok {
		t.Error("record without any device accepted")
	}
}
