package model

import (
	"github.com/dpo2u/lgpdkit/internal/utils"
)

// Contact 公司对接人
type Contact struct {
	Responsible string `json:"responsavel" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"telefone,omitempty"`
}

// CompanyProfile 公司画像，采集完成后不再修改
type CompanyProfile struct {
	Name           string  `json:"nome" validate:"required,min=2"`
	TaxID          string  `json:"cnpj" validate:"required,cnpj"`
	Sector         string  `json:"setor" validate:"required"`
	Employees      int     `json:"colaboradores" validate:"gt=0"`
	CollectsData   bool    `json:"coletaDados"`
	UsesProcessors bool    `json:"possuiOperadores"`
	Contact        Contact `json:"contato"`
}

// Validate 校验公司画像字段（CNPJ 校验位、邮箱格式）
func (p *CompanyProfile) Validate() error {
	return utils.ValidateStruct(p)
}

// Sectors 可选行业
var Sectors = []string{
	"Tecnologia/Software",
	"E-commerce/Varejo",
	"Serviços Financeiros",
	"Saúde",
	"Educação",
	"Consultoria",
	"Indústria",
	"Outro",
}

// EmployeeBucket 员工规模档位
type EmployeeBucket struct {
	Label string
	Value int
}

var EmployeeBuckets = []EmployeeBucket{
	{Label: "1-10 (Micro)", Value: 5},
	{Label: "11-49 (Pequena)", Value: 30},
	{Label: "50-249 (Média)", Value: 150},
	{Label: "250+ (Grande)", Value: 500},
}
