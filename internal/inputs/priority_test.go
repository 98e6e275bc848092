package inputs_test

import (
	"testing"

	"github.com/pipewise/pipewise/agent-core/internal/inputs"
)

func TestDetectPriority(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		content string
		want    int
	}{
		{"plain content", nil, "hello, quick question about billing", 3},
		{"urgent keyword", nil, "this is URGENT, please respond", 5},
		{"asap keyword", nil, "asap please", 5},
		{"deadline keyword", nil, "the deadline is friday", 4},
		{"x-priority highest", map[string]string{"X-Priority": "1"}, "hello", 5},
		{"x-priority annotated", map[string]string{"X-Priority": "1 (Highest)"}, "hello", 5},
		{"x-priority lowest", map[string]string{"X-Priority": "5"}, "hello", 3},
		{"importance high", map[string]string{"Importance": "high"}, "hello", 4},
		{"priority urgent header", map[string]string{"Priority": "urgent"}, "hello", 5},
		{"content beats weaker header", map[string]string{"Importance": "high"}, "emergency!", 5},
		{"header beats weaker content", map[string]string{"X-Priority": "1"}, "important note", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := inputs.DetectPriority(tt.headers, tt.content)
			if got != tt.want {
				t.Errorf("DetectPriority() = %d, want %d", got, tt.want)
			}
		})
	}
}
