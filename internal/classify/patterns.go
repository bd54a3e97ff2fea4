package classify

import "regexp"

// All patterns run against accent-folded lower-case text.

var exclusionCategories = []exclusionCategory{
	{
		name:   "receita",
		reason: "parece ser receita médica",
		patterns: res(
			`receita\s+(medica|especial|simples)`,
			`receituario`,
			`prescricao\s+medica`,
			`uso\s+(continuo|interno|externo)`,
			`tomar\s+\d+\s*(comprimido|capsula|gota)`,
			`posologia`,
			`via\s+oral`,
			`\d+\s*mg\s+(ao\s+dia|por\s+dia|/dia)`,
			`assinatura\s+(e|/)\s*crm`,
		),
	},
	{
		name:   "solicitacao",
		reason: "parece ser solicitação de exame (sem resultados)",
		patterns: res(
			`solicitacao\s+de\s+exames?`,
			`solicito\s+(os\s+)?exames?`,
			`guia\s+sadt`,
			`requisicao\s+de\s+exames?`,
			`favor\s+realizar`,
			`exames?\s+solicitados?`,
			`encaminho\s+para\s+realizacao`,
		),
	},
	{
		name:   "extrato",
		reason: "parece ser extrato ou demonstrativo de pagamento",
		patterns: res(
			`(extrato|demonstrativo)\s+(de\s+)?pagamento`,
			`faturamento\s+medico`,
			`valor\s+pago`,
			`\bglosa\b`,
			`repasse\s+medico`,
			`competencia\s+\d{2}/\d{4}`,
		),
	},
	{
		name:   "guia",
		reason: "parece ser guia de autorização",
		patterns: res(
			`guia\s+de\s+autorizacao`,
			`autorizacao\s+previa`,
			`senha\s+de\s+autorizacao`,
			`numero\s+da\s+guia`,
			`carteirinha\s+do\s+beneficiario`,
		),
	},
	{
		name:   "atestado",
		reason: "parece ser atestado médico",
		patterns: res(
			`atestado\s+medico`,
			`atesto\s+(para\s+os\s+devidos\s+fins|que)`,
			`afastamento\s+de\s+\d+\s+dias`,
		),
	},
	{
		name:   "declaracao",
		reason: "parece ser declaração",
		patterns: res(
			`\bdeclaracao\b`,
			`declaro\s+(para|que)`,
			`para\s+fins\s+de\s+comprovacao`,
		),
	},
	{
		name:   "termo",
		reason: "parece ser termo de consentimento",
		patterns: res(
			`termo\s+de\s+consentimento`,
			`consentimento\s+(livre\s+e\s+)?esclarecido`,
			`autorizo\s+a\s+realizacao`,
		),
	},
	{
		name:   "imagem",
		reason: "parece ser laudo de imagem",
		patterns: res(
			`ultrassonografia`,
			`ecografia`,
			`tomografia`,
			`ressonancia`,
			`radiografia`,
			`ecogenicidade`,
			`parenquima`,
			`impressao\s+diagnostica`,
			`doppler`,
		),
	},
	{
		name:   "anatomopatologico",
		reason: "parece ser laudo anatomopatológico",
		patterns: res(
			`anatomopatologico`,
			`histopatologico`,
			`citopatologico`,
			`biopsia`,
			`macroscopia`,
			`microscopia`,
			`margens\s+cirurgicas`,
		),
	},
}

var referenceMarkers = res(
	`valor(es)?\s+de\s+referencia`,
	`\bvr\s*[:.]`,
	`\bref(erencia)?\s*[:.]`,
	`intervalo\s+de\s+referencia`,
)

var numericUnitRe = regexp.MustCompile(
	`\d+(?:[.,]\d+)?\s*(?:mg/dl|g/dl|u/l|ui/l|mui/l|meq/l|mmol/l|ng/ml|pg/ml|ng/dl|ug/dl|/mm3|mm/h|fl\b|pg\b|%)`,
)

var labKeywords = res(
	`\bhemograma\b`,
	`\bglicose\b`,
	`\bcreatinina\b`,
	`\bureia\b`,
	`\bcolesterol\b`,
	`\btriglicer`,
	`\bhemoglobina\b`,
	`\bhematocrito\b`,
	`\bleucocitos\b`,
	`\bplaquetas\b`,
	`\bferritina\b`,
	`\btsh\b`,
	`\btgo\b`,
	`\btgp\b`,
)

var sectionMarkers = res(
	`material\s*:\s*(sangue|soro|plasma|urina|fezes)`,
	`metodo\s*:`,
	`resultado\s+de\s+exames?`,
	`laudo\s+laboratorial`,
)
