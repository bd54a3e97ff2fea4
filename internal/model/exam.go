package model

// RawDocument is one input file for a batch run.
type RawDocument struct {
	Filename    string `json:"filename"`
	RawText     string `json:"rawText"`
	ContentHash string `json:"contentHash,omitempty"`
}

// DocumentType is the classifier's verdict for a document.
type DocumentType string

const (
	DocumentTypeLaboratory DocumentType = "LABORATORIAL"
	DocumentTypeIgnored    DocumentType = "IGNORADO"
)

// ExtractionMethod records which strategy produced a result.
type ExtractionMethod string

const (
	MethodRegex    ExtractionMethod = "REGEX"
	MethodTemplate ExtractionMethod = "TEMPLATE"
	MethodML       ExtractionMethod = "ML"
	MethodHybrid   ExtractionMethod = "HYBRID"
)

// AlertType is the direction of an out-of-range result.
type AlertType string

const (
	AlertHigh AlertType = "HIGH"
	AlertLow  AlertType = "LOW"
)

// ExtractedExam is one exam measurement for one collection date. It has not
// been committed to the patient record yet.
type ExtractedExam struct {
	PatientNameRaw     string           `json:"paciente"`
	StandardExamName   string           `json:"exame"`
	RawExamName        string           `json:"nome_original"`
	Standardized       bool             `json:"padronizado"`
	ResultRaw          string           `json:"resultado"`
	ResultNumeric      *float64         `json:"resultado_numerico"`
	Unit               string           `json:"unidade"`
	ReferenceRangeText string           `json:"referencia"`
	CollectionDate     string           `json:"data_coleta"`
	Laboratory         string           `json:"laboratorio"`
	IsAltered          bool             `json:"alterado"`
	AlertType          AlertType        `json:"tipo_alerta,omitempty"`
	NeedsReview        bool             `json:"revisar"`
	Method             ExtractionMethod `json:"metodo"`
	Notes              []string         `json:"observacoes,omitempty"`
	SourceLine         string           `json:"linha_origem,omitempty"`
	SourceFile         string           `json:"arquivo_origem"`
}

// IgnoredFile is a non-laboratory document with the classifier's reason.
type IgnoredFile struct {
	File     string `json:"arquivo"`
	Reason   string `json:"motivo"`
	Category string `json:"categoria,omitempty"`
}

// FileError is a document that failed during processing.
type FileError struct {
	File    string `json:"arquivo"`
	Message string `json:"erro"`
}

// BatchResult aggregates one batch run. BatchID, TotalTimeMs and
// ExamsPerMinute identify and time the run; every other field is a pure
// function of the documents and the catalogs.
type BatchResult struct {
	BatchID        string          `json:"lote_id"`
	TotalFiles     int             `json:"total_arquivos"`
	Processed      int             `json:"arquivos_processados"`
	Ignored        int             `json:"arquivos_ignorados"`
	TotalExams     int             `json:"total_exames"`
	Exams          []ExtractedExam `json:"exames"`
	IgnoredFiles   []IgnoredFile   `json:"ignorados"`
	Errors         []FileError     `json:"erros"`
	TotalTimeMs    int64           `json:"tempo_total_ms"`
	ExamsPerMinute float64         `json:"exames_por_minuto"`
}
