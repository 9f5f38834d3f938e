package episode

import "testing"

func TestEffectiveDuration(t *testing.T) {
	e := Episode{Duration: 3600}
	if got := e.EffectiveDuration(); got != 3600 {
		t.Errorf("EffectiveDuration = %v, want feed value 3600", got)
	}

	e.ActualDuration = 3725
	if got := e.EffectiveDuration(); got != 3725 {
		t.Errorf("EffectiveDuration = %v, want measured value 3725", got)
	}
}
