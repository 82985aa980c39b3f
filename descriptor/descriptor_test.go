package descriptor

import "testing"

func TestValueCommonFields(t *testing.T) {
	cw := 2.2
	b := &Bundle{Instrument: "GMOS-N", ObservationType: "OBJECT", CentralWavelength: &cw}

	tests := []struct {
		name string
		want any
	}{
		{"instrument", "GMOS-N"},
		{"observation_type", "OBJECT"},
		{"central_wavelength", 2.2},
	}
	for _, tc := range tests {
		got, ok := b.Value(tc.name)
		if !ok {
			t.Errorf("Value(%q) reported unknown, want known", tc.name)
		}
		if got != tc.want {
			t.Errorf("Value(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestValueNilPointerFieldReturnsKnownButNil(t *testing.T) {
	b := &Bundle{}
	v, ok := b.Value("central_wavelength")
	if !ok {
		t.Fatal("expected central_wavelength to be known even when unset")
	}
	if v != nil {
		t.Errorf("expected nil value for an unset pointer field, got %v", v)
	}
}

func TestValueExtraFallback(t *testing.T) {
	b := &Bundle{Extra: map[string]any{"disperser": "B600"}}
	v, ok := b.Value("disperser")
	if !ok || v != "B600" {
		t.Errorf("expected disperser from Extra, got %v, %v", v, ok)
	}
}

func TestValueKnownButUnsetDescriptor(t *testing.T) {
	b := &Bundle{}
	v, ok := b.Value("read_mode")
	if !ok {
		t.Error("expected read_mode to be a known descriptor even when absent from Extra")
	}
	if v != nil {
		t.Errorf("expected nil for an unset known descriptor, got %v", v)
	}
}

func TestValueUnknownDescriptorReturnsNotOK(t *testing.T) {
	b := &Bundle{}
	_, ok := b.Value("totally_made_up_field")
	if ok {
		t.Error("expected an unregistered descriptor name to report unknown")
	}
}

func TestFloatCoercion(t *testing.T) {
	b := &Bundle{ExposureTime: 30}
	v, present, numeric := b.Float("exposure_time")
	if !present || !numeric || v != 30 {
		t.Errorf("Float(exposure_time) = %v, %v, %v, want 30, true, true", v, present, numeric)
	}
}

func TestFloatNonNumericReportsNotNumeric(t *testing.T) {
	b := &Bundle{ObservationType: "OBJECT"}
	_, present, numeric := b.Float("observation_type")
	if !present {
		t.Error("expected observation_type to be present")
	}
	if numeric {
		t.Error("expected observation_type to not be numeric")
	}
}

func TestHasType(t *testing.T) {
	b := &Bundle{Types: map[string]bool{"SPECTROSCOPY": true}}
	if !b.HasType("SPECTROSCOPY") {
		t.Error("expected SPECTROSCOPY to be set")
	}
	if b.HasType("MOS") {
		t.Error("expected MOS to be unset")
	}
	var nilBundle *Bundle
	if nilBundle.HasType("SPECTROSCOPY") {
		t.Error("expected HasType on a nil bundle to report false, not panic")
	}
}

func TestArmValue(t *testing.T) {
	b := &Bundle{ArmExtra: map[string]map[string]any{
		"exposure_time": {"blue": 10.0, "red": 20.0},
	}}
	v, ok := b.ArmValue("exposure_time", "red")
	if !ok || v != 20.0 {
		t.Errorf("ArmValue(exposure_time, red) = %v, %v, want 20.0, true", v, ok)
	}
	_, ok = b.ArmValue("exposure_time", "slitv")
	if ok {
		t.Error("expected no value for an arm not present in ArmExtra")
	}
}

func TestIsKnownDescriptor(t *testing.T) {
	if !IsKnownDescriptor("want_before_arc") {
		t.Error("expected want_before_arc (GHOST-specific) to be a known descriptor")
	}
	if IsKnownDescriptor("not_a_real_descriptor") {
		t.Error("expected an unregistered name to report unknown")
	}
}
