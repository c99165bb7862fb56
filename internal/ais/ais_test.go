package ais

import "testing"

func TestParseStreamMessagePositionReport(t *testing.T) {
	raw := []byte(`{
		"MessageType": "PositionReport",
		"MetaData": {"MMSI": 265547250, "ShipName": "M/S TESTA  "},
		"Message": {"PositionReport": {"Latitude": 58.275, "Longitude": 12.285, "Sog": 6.2, "Cog": 350, "UserID": 265547250}}
	}`)
	fix, ok := parseStreamMessage(raw)
	if !ok {
		t.Fatal("expected message to parse")
	}
	if fix.MMSI != "265547250" {
		t.Errorf("unexpected mmsi: %q", fix.MMSI)
	}
	if fix.ShipName != "M/S TESTA" {
		t.Errorf("expected trimmed ship name, got %q", fix.ShipName)
	}
	if fix.COG != 350 {
		t.Errorf("expected normalized cog 350, got %v", fix.COG)
	}
}

func TestParseStreamMessageRejectsNonPosition(t *testing.T) {
	raw := []byte(`{"MessageType": "ShipStaticData", "MetaData": {"MMSI": 1}, "Message": {}}`)
	if _, ok := parseStreamMessage(raw); ok {
		t.Error("expected non-position message to be rejected")
	}
}

func TestParseStreamMessageRejectsInvalidPosition(t *testing.T) {
	raw := []byte(`{
		"MessageType": "PositionReport",
		"MetaData": {"MMSI": 1},
		"Message": {"PositionReport": {"Latitude": 999, "Longitude": 999, "UserID": 1}}
	}`)
	if _, ok := parseStreamMessage(raw); ok {
		t.Error("expected out-of-range position to be rejected")
	}
}

func TestRawDecoderRejectsGarbage(t *testing.T) {
	d := NewRawDecoder()
	if _, ok := d.DecodeLine("not a sentence"); ok {
		t.Error("expected garbage line to be rejected")
	}
}
