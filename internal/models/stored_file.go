package models

const (
	FileKindInvoicePDF  = "invoice_pdf"
	FileKindContractPDF = "contract_pdf"
)

// StoredFile keeps generated documents alongside the records that own them.
type StoredFile struct {
	Base
	OwnerType   string `gorm:"size:30;index:idx_file_owner" json:"owner_type"`
	OwnerID     string `gorm:"size:36;index:idx_file_owner" json:"owner_id"`
	Kind        string `gorm:"size:30" json:"kind"`
	Filename    string `gorm:"size:255" json:"filename"`
	ContentType string `gorm:"size:100" json:"content_type"`
	Size        int64  `json:"size"`
	Data        []byte `json:"-"`
}

func (StoredFile) TableName() string { return "stored_files" }
