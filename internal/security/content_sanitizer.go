// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DescriptionSanitizer は事業者が入力したサービス説明文のHTMLをサニタイズする。
// bluemondayの許可リストポリシーで、段落・改行・リスト・強調のみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DescriptionSanitizer はサービス説明文のサニタイズ機能のインターフェース。
// 掲載の保存前に使用される。
type DescriptionSanitizer interface {
	// Sanitize は説明文をサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, ul, ol, li, strong, em）以外のタグと全ての属性を除去する。
	// リンクと画像は許可しない。前後の空白は除去する。
	Sanitize(raw string) string
}

// descriptionSanitizer はDescriptionSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はDescriptionSanitizerの新しいインスタンスを生成する。
func NewDescriptionSanitizer() *descriptionSanitizer {
	p := bluemonday.NewPolicy()

	// script, style, iframe, a, img等は許可リストに含めないことで除去される
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em",
	)

	return &descriptionSanitizer{
		policy: p,
	}
}

// Sanitize は説明文をサニタイズする。
func (s *descriptionSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
