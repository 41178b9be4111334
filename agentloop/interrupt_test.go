package agentloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnanswered(t *testing.T) {
	invoke := func(author, id string) Msg { return NewMsg(RoleAssistant, author, use(id, "t")) }
	result := func(id string) Msg { return NewMsg(RoleTool, "bot", ToolResultBlock{ID: id, Status: StatusSuccess}) }

	tests := []struct {
		name string
		log  []Msg
		want []string
	}{
		{"empty", nil, nil},
		{"all answered", []Msg{invoke("bot", "1"), result("1")}, nil},
		{"pending tail", []Msg{invoke("bot", "1"), result("1"), invoke("bot", "2")}, []string{"2"}},
		{"id reused in a later step", []Msg{invoke("bot", "1"), result("1"), invoke("bot", "1")}, []string{"1"}},
		{"result before invocation", []Msg{result("1"), invoke("bot", "1")}, []string{"1"}},
		{"each reuse answered", []Msg{invoke("bot", "1"), result("1"), invoke("bot", "1"), result("1")}, nil},
		{"other author ignored", []Msg{invoke("other", "1"), invoke("bot", "2")}, []string{"2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, u := range unanswered(tt.log, "bot") {
				got = append(got, u.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
