package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dpo2u/lgpdkit/internal/model"
)

// ProcessorContractStep 生成与数据处理者的 DPA 附录模板
type ProcessorContractStep struct {
	deps Deps
}

func NewProcessorContractStep(d Deps) *ProcessorContractStep {
	return &ProcessorContractStep{deps: d}
}

func (s *ProcessorContractStep) ID() string { return IDProcessorDPA }

func (s *ProcessorContractStep) Execute(_ context.Context, profile model.CompanyProfile, _ Prior, outputDir string) model.ToolResult {
	input := map[string]string{"empresa": profile.Name}
	contract := ProcessorContract(profile, s.deps.now())
	path, err := writeText(outputDir, "contrato-dpa.txt", contract)
	if err != nil {
		return s.deps.fail(IDProcessorDPA, input, err)
	}
	return s.deps.succeed(IDProcessorDPA, input, map[string]string{"arquivo": path}, path, contract)
}

func ProcessorContract(profile model.CompanyProfile, now time.Time) string {
	transfer := "Dados permanecem no território nacional."
	if strings.Contains(profile.Sector, "Internacional") {
		transfer = "Transferências internacionais mediante salvaguardas adequadas."
	}

	return fmt.Sprintf(`ADENDO DE PROTEÇÃO DE DADOS (DPA)
%[1]s

Data: %[2]s

1. DEFINIÇÕES
Controlador: %[1]s
Operador: [Nome do Fornecedor]

2. OBJETO
Este adendo regula o tratamento de dados pessoais pelo Operador em nome do Controlador.

3. OBRIGAÇÕES DO OPERADOR
- Tratar dados apenas conforme instruções documentadas
- Garantir confidencialidade dos dados
- Implementar medidas técnicas de segurança
- Auxiliar o Controlador no atendimento aos direitos dos titulares
- Notificar incidentes de segurança em até 24 horas
- Excluir ou devolver dados ao final do contrato

4. MEDIDAS DE SEGURANÇA
- Criptografia de dados em trânsito e repouso
- Controle de acesso baseado em funções
- Logs de auditoria
- Backup seguro
- Treinamento de equipe

5. SUBCONTRATAÇÃO
Qualquer subcontratação deve ser aprovada previamente pelo Controlador.

6. TRANSFERÊNCIA INTERNACIONAL
%[3]s

7. AUDITORIA
Controlador pode auditar o cumprimento deste adendo mediante aviso prévio.

8. RESPONSABILIDADE
Operador é responsável por danos causados por tratamento em desacordo com a LGPD.

9. VIGÊNCIA
Este adendo vigora durante todo o período do contrato principal.


Controlador: _________________________
%[4]s

Operador: ___________________________
[Nome e Assinatura]`, profile.Name, now.Format(dateLayoutBR), transfer, profile.Contact.Responsible)
}
