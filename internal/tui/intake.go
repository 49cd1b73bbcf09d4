package tui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dpo2u/lgpdkit/internal/model"
	"github.com/dpo2u/lgpdkit/internal/utils"
)

// ErrAborted 用户在表单中按下 esc 或 ctrl+c
var ErrAborted = errors.New("tui: intake aborted")

type fieldKind int

const (
	kindText fieldKind = iota
	kindChoice
	kindConfirm
)

const (
	fieldName        = "nome"
	fieldTaxID       = "cnpj"
	fieldSector      = "setor"
	fieldEmployees   = "colaboradores"
	fieldCollects    = "coletaDados"
	fieldProcessors  = "possuiOperadores"
	fieldResponsible = "responsavel"
	fieldEmail       = "email"
	fieldPhone       = "telefone"
)

type field struct {
	key      string
	prompt   string
	kind     fieldKind
	input    textinput.Model
	choices  []string
	cursor   int
	confirm  bool
	validate func(string) error
}

func textField(key, prompt, placeholder string, validate func(string) error) *field {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = 120
	in.Width = 50
	return &field{key: key, prompt: prompt, kind: kindText, input: in, validate: validate}
}

func choiceField(key, prompt string, choices []string) *field {
	return &field{key: key, prompt: prompt, kind: kindChoice, choices: choices}
}

func confirmField(key, prompt string) *field {
	return &field{key: key, prompt: prompt, kind: kindConfirm, confirm: true}
}

func required(msg string) func(string) error {
	return func(v string) error {
		if strings.TrimSpace(v) == "" {
			return errors.New(msg)
		}
		return nil
	}
}

func validateTaxID(v string) error {
	if strings.TrimSpace(v) == "" {
		return errors.New("CNPJ é obrigatório")
	}
	if !utils.ValidateCNPJ(v) {
		return errors.New("CNPJ inválido")
	}
	return nil
}

func validateEmail(v string) error {
	if strings.TrimSpace(v) == "" {
		return errors.New("Email é obrigatório")
	}
	if !utils.ValidateEmail(strings.TrimSpace(v)) {
		return errors.New("Email inválido")
	}
	return nil
}

// IntakeModel 公司信息采集表单，逐项填写
type IntakeModel struct {
	fields  []*field
	index   int
	errMsg  string
	done    bool
	aborted bool
}

func NewIntake() *IntakeModel {
	buckets := make([]string, len(model.EmployeeBuckets))
	for i, b := range model.EmployeeBuckets {
		buckets[i] = b.Label
	}

	m := &IntakeModel{
		fields: []*field{
			textField(fieldName, "Nome da empresa:", "Acme Ltda", required("Nome da empresa é obrigatório")),
			textField(fieldTaxID, "CNPJ da empresa:", "00.000.000/0000-00", validateTaxID),
			choiceField(fieldSector, "Setor de atuação:", model.Sectors),
			choiceField(fieldEmployees, "Número de colaboradores:", buckets),
			confirmField(fieldCollects, "A empresa coleta dados pessoais de clientes/usuários?"),
			confirmField(fieldProcessors, "A empresa utiliza fornecedores que processam dados pessoais (operadores)?"),
			textField(fieldResponsible, "Nome do responsável/DPO:", "", required("Nome do responsável é obrigatório")),
			textField(fieldEmail, "Email de contato:", "dpo@empresa.com.br", validateEmail),
			textField(fieldPhone, "Telefone (opcional):", "", nil),
		},
	}
	m.fields[0].input.Focus()
	return m
}

func (m *IntakeModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *IntakeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.done || m.aborted {
		return m, nil
	}
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "ctrl+c", "esc":
		m.aborted = true
		return m, tea.Quit
	}

	f := m.fields[m.index]
	if key.Type == tea.KeyEnter {
		return m, m.submit(f)
	}

	switch f.kind {
	case kindText:
		var cmd tea.Cmd
		f.input, cmd = f.input.Update(msg)
		return m, cmd
	case kindChoice:
		switch key.String() {
		case "up", "k":
			if f.cursor > 0 {
				f.cursor--
			}
		case "down", "j":
			if f.cursor < len(f.choices)-1 {
				f.cursor++
			}
		}
	case kindConfirm:
		switch strings.ToLower(key.String()) {
		case "y", "s":
			f.confirm = true
		case "n":
			f.confirm = false
		case "left", "right", "tab", "h", "l":
			f.confirm = !f.confirm
		}
	}
	return m, nil
}

// submit 校验当前字段并前进
func (m *IntakeModel) submit(f *field) tea.Cmd {
	if f.kind == kindText && f.validate != nil {
		if err := f.validate(f.input.Value()); err != nil {
			m.errMsg = err.Error()
			return nil
		}
	}
	m.errMsg = ""
	if f.kind == kindText {
		f.input.Blur()
	}

	m.index++
	if m.index >= len(m.fields) {
		m.index = len(m.fields) - 1
		m.done = true
		return tea.Quit
	}
	if next := m.fields[m.index]; next.kind == kindText {
		return next.input.Focus()
	}
	return nil
}

func (m *IntakeModel) View() string {
	if m.done || m.aborted {
		return ""
	}
	var b strings.Builder
	b.WriteString(TitleStyle.Render("📋 Vamos coletar algumas informações sobre sua empresa"))
	b.WriteString("\n\n")

	for i := 0; i < m.index; i++ {
		f := m.fields[i]
		fmt.Fprintf(&b, "%s %s\n", SuccessStyle.Render("✔ "+f.prompt), f.answer())
	}

	f := m.fields[m.index]
	fmt.Fprintf(&b, "%s\n", selectedStyle.Render("? "+f.prompt))
	switch f.kind {
	case kindText:
		b.WriteString(f.input.View())
		b.WriteString("\n")
	case kindChoice:
		for i, c := range f.choices {
			if i == f.cursor {
				b.WriteString(selectedStyle.Render("❯ " + c))
			} else {
				b.WriteString("  " + c)
			}
			b.WriteString("\n")
		}
	case kindConfirm:
		yes, no := "  Sim  ", "  Não  "
		if f.confirm {
			yes = selectedStyle.Render("[Sim]")
		} else {
			no = selectedStyle.Render("[Não]")
		}
		fmt.Fprintf(&b, "%s %s\n", yes, no)
	}

	if m.errMsg != "" {
		b.WriteString(ErrorStyle.Render("✖ " + m.errMsg))
		b.WriteString("\n")
	}
	b.WriteString(MutedStyle.Render("enter confirma • ↑/↓ seleciona • esc cancela"))
	b.WriteString("\n")
	return b.String()
}

func (f *field) answer() string {
	switch f.kind {
	case kindChoice:
		return f.choices[f.cursor]
	case kindConfirm:
		if f.confirm {
			return "Sim"
		}
		return "Não"
	default:
		return strings.TrimSpace(f.input.Value())
	}
}

func (m *IntakeModel) Done() bool    { return m.done }
func (m *IntakeModel) Aborted() bool { return m.aborted }

func (m *IntakeModel) lookup(key string) *field {
	for _, f := range m.fields {
		if f.key == key {
			return f
		}
	}
	return nil
}

// Profile 将表单答案转换为公司画像
func (m *IntakeModel) Profile() model.CompanyProfile {
	text := func(key string) string { return strings.TrimSpace(m.lookup(key).input.Value()) }
	return model.CompanyProfile{
		Name:           text(fieldName),
		TaxID:          text(fieldTaxID),
		Sector:         m.lookup(fieldSector).answer(),
		Employees:      model.EmployeeBuckets[m.lookup(fieldEmployees).cursor].Value,
		CollectsData:   m.lookup(fieldCollects).confirm,
		UsesProcessors: m.lookup(fieldProcessors).confirm,
		Contact: model.Contact{
			Responsible: text(fieldResponsible),
			Email:       text(fieldEmail),
			Phone:       text(fieldPhone),
		},
	}
}

// RunIntake 运行交互表单并返回公司画像
func RunIntake(in io.Reader, out io.Writer) (model.CompanyProfile, error) {
	m := NewIntake()
	final, err := tea.NewProgram(m, tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return model.CompanyProfile{}, fmt.Errorf("tui: run intake: %w", err)
	}
	result := final.(*IntakeModel)
	if !result.Done() {
		return model.CompanyProfile{}, ErrAborted
	}
	return result.Profile(), nil
}
