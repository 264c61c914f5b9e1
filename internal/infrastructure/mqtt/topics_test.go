package mqtt

import "testing"

func TestTopics_SystemStatus(t *testing.T) {
	if got := (Topics{}).SystemStatus(); got != "vueflux/system/status" {
		t.Errorf("SystemStatus() = %q", got)
	}
}

func TestTopics_Usage(t *testing.T) {
	tests := []struct {
		name     string
		account  string
		channel  string
		expected string
	}{
		{
			name:     "plain names",
			account:  "home",
			channel:  "Dryer",
			expected: "vueflux/usage/home/Dryer",
		},
		{
			name:     "slash in channel name",
			account:  "home",
			channel:  "A/C Unit",
			expected: "vueflux/usage/home/A_C Unit",
		},
		{
			name:     "wildcards stripped",
			account:  "ho+me",
			channel:  "ch#1",
			expected: "vueflux/usage/ho_me/ch_1",
		},
		{
			name:     "mains channel number",
			account:  "home",
			channel:  "Main Panel",
			expected: "vueflux/usage/home/Main Panel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Topics{}).Usage(tt.account, tt.channel); got != tt.expected {
				t.Errorf("Usage(%q, %q) = %q, want %q", tt.account, tt.channel, got, tt.expected)
			}
		})
	}
}
