package clinical

// MedicalRecord maps to the medical_record table. AppointmentID is nil once
// the appointment has been deleted.
type MedicalRecord struct {
	ID            int64   `json:"recordId"`
	AppointmentID *int64  `json:"appointmentId"`
	Diagnosis     *string `json:"diagnosis,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	RecordDate    string  `json:"recordDate"`
}

type RecordRequest struct {
	AppointmentID int64   `json:"appointmentId" validate:"required"`
	Diagnosis     *string `json:"diagnosis"`
	Notes         *string `json:"notes"`
	RecordDate    *string `json:"recordDate"`
}

// Prescription maps to the prescription table. Items are kept in the order
// they were prescribed.
type Prescription struct {
	ID               int64   `json:"prescriptionId"`
	RecordID         int64   `json:"recordId"`
	Instruction      *string `json:"instruction,omitempty"`
	PrescriptionDate string  `json:"prescriptionDate"`
	Items            []*Item `json:"items"`
}

type Item struct {
	ID           int64   `json:"itemId"`
	MedicineID   int64   `json:"medicineId"`
	MedicineName string  `json:"medicineName,omitempty"`
	Quantity     int     `json:"quantity"`
	Dosage       *string `json:"dosage,omitempty"`
	Position     int     `json:"position"`
}

type ItemRequest struct {
	MedicineID int64   `json:"medicineId"`
	Quantity   int     `json:"quantity"`
	Dosage     *string `json:"dosage"`
}

// PrescriptionRequest is the body of POST /api/prescription.
type PrescriptionRequest struct {
	RecordID    int64          `json:"recordId" validate:"required"`
	Instruction *string        `json:"instruction"`
	Items       []*ItemRequest `json:"items" validate:"required,min=1"`
}
