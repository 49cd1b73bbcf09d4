package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func typeText(m *IntakeModel, text string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func press(m *IntakeModel, t tea.KeyType) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: t})
	return cmd
}

func pressRune(m *IntakeModel, r rune) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
}

func TestIntakeCollectsProfile(t *testing.T) {
	m := NewIntake()

	typeText(m, "Acme Ltda")
	press(m, tea.KeyEnter)
	typeText(m, "11.222.333/0001-81")
	press(m, tea.KeyEnter)
	// 第一个行业 Tecnologia/Software
	press(m, tea.KeyEnter)
	// 11-49 档位
	press(m, tea.KeyDown)
	press(m, tea.KeyEnter)
	press(m, tea.KeyEnter)
	pressRune(m, 'n')
	press(m, tea.KeyEnter)
	typeText(m, "Maria Souza")
	press(m, tea.KeyEnter)
	typeText(m, "dpo@acme.com")
	press(m, tea.KeyEnter)
	cmd := press(m, tea.KeyEnter)

	if !m.Done() {
		t.Fatalf("expected form to be done, error=%q", m.errMsg)
	}
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	p := m.Profile()
	if p.Name != "Acme Ltda" || p.TaxID != "11.222.333/0001-81" {
		t.Fatalf("unexpected identity: %+v", p)
	}
	if p.Sector != "Tecnologia/Software" || p.Employees != 30 {
		t.Fatalf("unexpected sector/employees: %s/%d", p.Sector, p.Employees)
	}
	if !p.CollectsData || p.UsesProcessors {
		t.Fatalf("unexpected answers: collects=%v processors=%v", p.CollectsData, p.UsesProcessors)
	}
	if p.Contact.Responsible != "Maria Souza" || p.Contact.Email != "dpo@acme.com" || p.Contact.Phone != "" {
		t.Fatalf("unexpected contact: %+v", p.Contact)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("profile should validate: %v", err)
	}
}

func TestIntakeRejectsInvalidInput(t *testing.T) {
	m := NewIntake()

	press(m, tea.KeyEnter)
	if m.index != 0 || !strings.Contains(m.errMsg, "obrigatório") {
		t.Fatalf("empty name should be rejected, index=%d err=%q", m.index, m.errMsg)
	}

	typeText(m, "Acme Ltda")
	press(m, tea.KeyEnter)
	typeText(m, "11.111.111/1111-11")
	press(m, tea.KeyEnter)
	if m.index != 1 || m.errMsg != "CNPJ inválido" {
		t.Fatalf("invalid CNPJ should be rejected, index=%d err=%q", m.index, m.errMsg)
	}
	if !strings.Contains(m.View(), "CNPJ inválido") {
		t.Fatalf("view should show validation error")
	}
}

func TestIntakeAbort(t *testing.T) {
	m := NewIntake()
	cmd := press(m, tea.KeyEsc)
	if !m.Aborted() || m.Done() {
		t.Fatalf("expected aborted form")
	}
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if m.View() != "" {
		t.Fatalf("aborted form should render nothing")
	}
}

func TestIntakeChoiceBounds(t *testing.T) {
	m := NewIntake()
	typeText(m, "Acme Ltda")
	press(m, tea.KeyEnter)
	typeText(m, "11.222.333/0001-81")
	press(m, tea.KeyEnter)

	press(m, tea.KeyUp)
	if m.fields[m.index].cursor != 0 {
		t.Fatalf("cursor should stay at top")
	}
	for i := 0; i < 20; i++ {
		press(m, tea.KeyDown)
	}
	if got := m.fields[m.index].answer(); got != "Outro" {
		t.Fatalf("cursor should stop at last sector, got %s", got)
	}
}
