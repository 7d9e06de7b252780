package vehicle

import "testing"

func TestModeTable(t *testing.T) {
	for _, m := range Modes {
		n, ok := ModeNumber(m)
		if !ok {
			t.Fatalf("mode %s has no number", m)
		}
		if back, _ := ModeName(n); back != m {
			t.Errorf("ModeName(%d) = %s, want %s", n, back, m)
		}
	}
	if ValidMode("ACRO") {
		t.Error("ACRO should not be offered")
	}
}

func TestChannelField(t *testing.T) {
	for ch, want := range map[int]string{3: "chan3_raw", 8: "chan8_raw", 16: "chan16_raw"} {
		if got := ChannelField(ch); got != want {
			t.Errorf("ChannelField(%d) = %q, want %q", ch, got, want)
		}
	}
}
