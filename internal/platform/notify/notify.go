// Package notify は申請・承認まわりの関係者通知を扱う。
// 送信はベストエフォート：失敗してもワークフロー本体は巻き戻さず、
// 呼び出し側が警告として利用者に伝える。
package notify

import (
	"context"
	"log"
	"strings"
)

type Message struct {
	To      []string
	Subject string
	Body    string
}

type Notifier interface {
	Send(ctx context.Context, m Message) error
}

// LogNotifier は実送信の代わりにログへ書くだけの実装。
// SMTP等の実装に差し替える場合もこのインターフェースを満たすこと。
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(_ context.Context, m Message) error {
	log.Printf("[MAIL] To:%s / Subject:%s / Body:%s", strings.Join(m.To, ","), m.Subject, m.Body)
	return nil
}
