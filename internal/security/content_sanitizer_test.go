package security

import (
	"strings"
	"testing"
)

// TestSanitize_AllowedTags は許可タグが通過することを検証する。
func TestSanitize_AllowedTags(t *testing.T) {
	sanitizer := NewDescriptionSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"pタグ", "<p>Cozy boarding</p>", "<p>Cozy boarding</p>"},
		{"リスト", "<ul><li>Walks</li><li>Meals</li></ul>", "<ul><li>Walks</li><li>Meals</li></ul>"},
		{"強調", "<strong>24/7</strong> <em>care</em>", "<strong>24/7</strong> <em>care</em>"},
		{"プレーンテキスト", "Friendly groomers", "Friendly groomers"},
		{"前後の空白", "  hello  ", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_ForbiddenContent は禁止タグと属性が除去されることを検証する。
func TestSanitize_ForbiddenContent(t *testing.T) {
	sanitizer := NewDescriptionSanitizer()

	tests := []struct {
		name         string
		input        string
		wantAbsent   []string
		wantContains []string
	}{
		{
			name:         "scriptタグ",
			input:        `<p>Hi</p><script>alert('xss')</script>`,
			wantAbsent:   []string{"<script", "alert"},
			wantContains: []string{"<p>Hi</p>"},
		},
		{
			name:         "リンクは許可しない",
			input:        `<a href="https://evil.example.com">Book now</a>`,
			wantAbsent:   []string{"<a", "href", "evil.example.com"},
			wantContains: []string{"Book now"},
		},
		{
			name:       "画像は許可しない",
			input:      `<img src="https://example.com/x.png" onerror="alert(1)">`,
			wantAbsent: []string{"<img", "onerror"},
		},
		{
			name:         "イベント属性",
			input:        `<p onclick="steal()">Tap</p>`,
			wantAbsent:   []string{"onclick", "steal"},
			wantContains: []string{"<p>Tap</p>"},
		},
		{
			name:         "style属性",
			input:        `<em style="display:none">hidden</em>`,
			wantAbsent:   []string{"style", "display"},
			wantContains: []string{"<em>hidden</em>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, should NOT contain %q", tt.input, got, absent)
				}
			}
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitize_Idempotent は同じ入力を2回サニタイズしても結果が変わらないことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewDescriptionSanitizer()
	input := `<p>Safe <strong>bold</strong></p><script>x()</script><a href="https://x">link</a>`

	first := sanitizer.Sanitize(input)
	second := sanitizer.Sanitize(first)
	if first != second {
		t.Errorf("not idempotent: %q != %q", first, second)
	}
}

// TestSanitize_EmptyInput は空文字列に空文字列を返すことを検証する。
func TestSanitize_EmptyInput(t *testing.T) {
	if got := NewDescriptionSanitizer().Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}
}

// TestDescriptionSanitizerInterface はインターフェースを満たすことを検証する。
func TestDescriptionSanitizerInterface(t *testing.T) {
	var _ DescriptionSanitizer = NewDescriptionSanitizer()
}
