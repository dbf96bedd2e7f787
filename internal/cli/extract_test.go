package cli

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/david/licitacoes/internal/ingest"
)

func TestApplyFetchOverrides(t *testing.T) {
	base := ingest.FetchConfig{MaxRetries: 5, TimeoutSeconds: 90}

	tests := []struct {
		name  string
		setup func(v *viper.Viper, flags *pflag.FlagSet)
		want  ingest.FetchConfig
	}{
		{
			name:  "nothing set keeps endpoint config",
			setup: func(*viper.Viper, *pflag.FlagSet) {},
			want:  base,
		},
		{
			name: "unchanged flags keep endpoint config",
			setup: func(v *viper.Viper, flags *pflag.FlagSet) {
				v.BindPFlag("pncp.max_retries", flags.Lookup("max-retries"))
				v.BindPFlag("pncp.timeout_seconds", flags.Lookup("timeout"))
			},
			want: base,
		},
		{
			name: "changed flag wins",
			setup: func(v *viper.Viper, flags *pflag.FlagSet) {
				v.BindPFlag("pncp.max_retries", flags.Lookup("max-retries"))
				flags.Set("max-retries", "0")
			},
			want: ingest.FetchConfig{MaxRetries: 0, TimeoutSeconds: 90},
		},
		{
			name: "config value wins",
			setup: func(v *viper.Viper, _ *pflag.FlagSet) {
				v.Set("pncp.timeout_seconds", 15)
			},
			want: ingest.FetchConfig{MaxRetries: 5, TimeoutSeconds: 15},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			flags := pflag.NewFlagSet("extract", pflag.ContinueOnError)
			flags.Int("max-retries", 3, "")
			flags.Int("timeout", 60, "")
			tt.setup(v, flags)

			got := base
			applyFetchOverrides(v, &got)
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}
