package packet_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/jacentio/arbor/packet"
)

func TestMatcherCompletePacket(t *testing.T) {
	raw := []byte("Login: a\nLength: 5\n\nhello")
	m := packet.NewMatcher(packet.DefaultLimits())

	end, complete, err := m.Match(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !complete {
		t.Fatal("expected packet to be complete")
	}
	if end != len(raw) {
		t.Errorf("expected end %d, got %d", len(raw), end)
	}
}

func TestMatcherByteAtATime(t *testing.T) {
	raw := []byte("Length: 3\n\nabcTRAILING")
	want := len("Length: 3\n\nabc")
	m := packet.NewMatcher(packet.DefaultLimits())

	for i := 1; i <= len(raw); i++ {
		end, complete, err := m.Match(raw[:i])
		if err != nil {
			t.Fatalf("prefix %d: unexpected error: %v", i, err)
		}
		if i < want && complete {
			t.Fatalf("prefix %d: expected incomplete", i)
		}
		if i >= want {
			if !complete {
				t.Fatalf("prefix %d: expected complete", i)
			}
			if end != want {
				t.Fatalf("prefix %d: expected end %d, got %d", i, want, end)
			}
		}
	}
}

func TestMatcherNoTerminatorNeverCompletes(t *testing.T) {
	m := packet.NewMatcher(packet.DefaultLimits())
	tests := []string{
		"",
		"Login: alice\n",
		"Length: 0\n",
		"Length: 0\nLogin: a\n",
	}
	for _, tt := range tests {
		_, complete, err := m.Match([]byte(tt))
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt, err)
		}
		if complete {
			t.Errorf("%q: expected incomplete", tt)
		}
	}
}

func TestMatcherZeroLength(t *testing.T) {
	raw := []byte("Length: 0\n\n")
	m := packet.NewMatcher(packet.DefaultLimits())
	end, complete, err := m.Match(raw)
	if err != nil || !complete || end != len(raw) {
		t.Errorf("expected complete at %d, got end=%d complete=%v err=%v", len(raw), end, complete, err)
	}
}

func TestMatcherIsIdempotent(t *testing.T) {
	raw := []byte("Length: 2\n\nok")
	m := packet.NewMatcher(packet.DefaultLimits())
	for i := 0; i < 3; i++ {
		end, complete, err := m.Match(raw)
		if err != nil || !complete || end != len(raw) {
			t.Fatalf("call %d: got end=%d complete=%v err=%v", i, end, complete, err)
		}
	}
}

func TestMatcherReset(t *testing.T) {
	m := packet.NewMatcher(packet.DefaultLimits())
	if _, _, err := m.Match([]byte("Length: 10\n\nabc")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.Reset()

	raw := []byte("Length: 1\n\nx")
	end, complete, err := m.Match(raw)
	if err != nil || !complete || end != len(raw) {
		t.Errorf("expected fresh match at %d, got end=%d complete=%v err=%v", len(raw), end, complete, err)
	}
}

func TestMatcherLengthLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"first line", "Length: 2\nLogin: a\n\nok", "Length: 2\nLogin: a\n\nok"},
		{"after another field", "Login: a\nLength: 2\n\nok", "Login: a\nLength: 2\n\nok"},
		{"longer field name first", "Content-Length: 5\nLength: 2\n\nokTAIL", "Content-Length: 5\nLength: 2\n\nok"},
		{"marker inside an earlier value", "Note: see Length: 9\nLength: 2\n\nokTAIL", "Note: see Length: 9\nLength: 2\n\nok"},
		{"last duplicate wins", "Length: 9\nLength: 2\n\nokTAIL", "Length: 9\nLength: 2\n\nok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := packet.NewMatcher(packet.DefaultLimits())
			end, complete, err := m.Match([]byte(tt.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !complete || end != len(tt.want) {
				t.Errorf("expected complete at %d, got end=%d complete=%v", len(tt.want), end, complete)
			}
		})
	}
}

func TestMatcherErrors(t *testing.T) {
	limits := packet.Limits{MaxPacketSize: 100, MaxHeaderSize: 64}
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"non-numeric length", "Length: abc\n\n", packet.ErrMalformedLength},
		{"negative length", "Length: -1\n\n", packet.ErrMalformedLength},
		{"empty length", "Length: \n\n", packet.ErrMalformedLength},
		{"too large", "Length: 101\n\n", packet.ErrPacketTooLarge},
		{"header too large", strings.Repeat("x", 65), packet.ErrHeaderTooLarge},
		{"no length line", "Login: a\n\nok", packet.ErrMissingLength},
		{"prefixed field name", "X-Length: 3\n\nabc", packet.ErrMissingLength},
		{"length inside a value", "Note: Length: 3\n\nabc", packet.ErrMissingLength},
		{"terminated header too large", "Login: " + strings.Repeat("x", 60) + "\nLength: 1\n\nx", packet.ErrHeaderTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := packet.NewMatcher(limits)
			_, _, err := m.Match([]byte(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if !errors.Is(err, packet.ErrFraming) {
				t.Errorf("expected error to wrap ErrFraming, got %v", err)
			}
		})
	}
}
