package domain

import (
	"testing"
)

func TestConversation_IsGroup(t *testing.T) {
	groupConv := &Conversation{
		ChatType: ChatTypeGroup,
	}
	if !groupConv.IsGroup() {
		t.Error("Expected IsGroup() to return true for group chat")
	}

	p2pConv := &Conversation{
		ChatType: ChatTypeP2P,
	}
	if p2pConv.IsGroup() {
		t.Error("Expected IsGroup() to return false for P2P chat")
	}
}

func TestConversation_IsAdmin(t *testing.T) {
	conv := &Conversation{
		Admins: []string{"ou_Owner@example.com"},
	}
	if !conv.IsAdmin("ou_owner") {
		t.Error("Expected normalized owner to be admin")
	}
	if !conv.IsAdmin("OU_OWNER:3") {
		t.Error("Expected device-suffixed owner to be admin")
	}
	if conv.IsAdmin("ou_other") {
		t.Error("Expected other actor not to be admin")
	}
}

func TestConversation_FindMemberByID(t *testing.T) {
	conv := &Conversation{
		Members: []Member{
			{ActorID: "ou_a", Name: "Alice"},
			{ActorID: "ou_b", Name: "Bob"},
		},
	}

	m := conv.FindMemberByID("OU_B")
	if m == nil || m.Name != "Bob" {
		t.Fatalf("Expected Bob, got %+v", m)
	}
	if conv.FindMemberByID("ou_c") != nil {
		t.Error("Expected nil for unknown member")
	}
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  User1  ", "user1"},
		{"12345:7@s.whatsapp.net", "12345"},
		{"12345@s.whatsapp.net", "12345"},
		{"@ou_abc", "ou_abc"},
		{"", ""},
	}
	for _, tt := range tests {
		got := NormalizeID(tt.in)
		if got != tt.want {
			t.Errorf("NormalizeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := NormalizeID(got); again != got {
			t.Errorf("NormalizeID not idempotent for %q: %q -> %q", tt.in, got, again)
		}
	}
}

func TestLevelForXP(t *testing.T) {
	tests := []struct {
		xp   int
		want int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{399, 2},
		{400, 3},
		{900, 4},
	}
	for _, tt := range tests {
		if got := LevelForXP(tt.xp); got != tt.want {
			t.Errorf("LevelForXP(%d) = %d, want %d", tt.xp, got, tt.want)
		}
	}
}

func TestTitleForLevel(t *testing.T) {
	titles := []string{"Newcomer", "Regular", "Veteran"}
	if got := TitleForLevel(1, titles); got != "Newcomer" {
		t.Errorf("level 1 = %q", got)
	}
	if got := TitleForLevel(9, titles); got != "Veteran" {
		t.Errorf("level 9 = %q", got)
	}
	if got := TitleForLevel(3, nil); got != "" {
		t.Errorf("empty table = %q", got)
	}
}

func TestContext_TargetOther(t *testing.T) {
	c := &Context{ReplyTarget: &ReplyTarget{AuthorID: "ou_quoted"}}
	if got := c.TargetOther("ou_bot"); got != "ou_quoted" {
		t.Errorf("Expected quoted author, got %q", got)
	}
	c.Mentions = []string{"ou_bot", "ou_m"}
	if got := c.TargetOther("ou_bot"); got != "ou_m" {
		t.Errorf("Expected mention, got %q", got)
	}
	c.Mentions = []string{"ou_bot"}
	c.ReplyTarget.AuthorID = "ou_bot"
	if got := c.TargetOther("ou_bot"); got != "" {
		t.Errorf("Expected no target when only self is referenced, got %q", got)
	}
	c.Mentions = []string{"ou_m"}
	if !c.Mentioned("OU_M") {
		t.Error("Expected Mentioned to normalize")
	}
}
