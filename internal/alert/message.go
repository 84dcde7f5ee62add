package alert

import (
	"fmt"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// message builds plain text plus Telegram entities. Entity offsets and lengths
// are counted in UTF-16 code units.
type message struct {
	b        strings.Builder
	offset   int
	entities []tgbotapi.MessageEntity
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

func (m *message) text(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	m.b.WriteString(s)
	m.offset += utf16Len(s)
}

func (m *message) styled(kind, s string) {
	if s == "" {
		return
	}
	n := utf16Len(s)
	m.entities = append(m.entities, tgbotapi.MessageEntity{Type: kind, Offset: m.offset, Length: n})
	m.b.WriteString(s)
	m.offset += n
}

func (m *message) bold(s string) { m.styled("bold", s) }

func (m *message) code(s string) { m.styled("code", s) }

func (m *message) String() string { return m.b.String() }
