package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOTelConfigApplyDefaults(t *testing.T) {
	cfg := OTelConfig{}
	cfg.ApplyDefaults()
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestOTelConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     OTelConfig
		wantErr bool
	}{
		{name: "disabled ignores everything", cfg: OTelConfig{SampleRate: 7}},
		{name: "enabled in range", cfg: OTelConfig{Enabled: true, SampleRate: 0.5}},
		{name: "enabled out of range", cfg: OTelConfig{Enabled: true, SampleRate: 1.5}, wantErr: true},
		{name: "enabled negative", cfg: OTelConfig{Enabled: true, SampleRate: -0.1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSetupDisabledIsNoop(t *testing.T) {
	p, err := Setup(context.Background(), OTelConfig{}, "test")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSetupRejectsBadSampleRate(t *testing.T) {
	_, err := Setup(context.Background(), OTelConfig{Enabled: true, SampleRate: 2}, "test")
	require.Error(t, err)
}
