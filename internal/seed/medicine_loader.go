package seed

import (
	"encoding/csv"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"pharmapos/domain"
)

// LoadMedicines ingests an intake CSV into the medicines table, ignoring
// duplicates. Columns: id, name, batch_number, manufacture_date,
// expiry_date, quantity_on_hand, unit_price.
func LoadMedicines(db *sqlx.DB, csvPath string) {
	file, err := os.Open(csvPath)
	if err != nil {
		log.Printf("unable to load medicine intake %s: %v", csvPath, err)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Printf("unable to read medicine header: %v", err)
		return
	}

	tx, err := db.Beginx()
	if err != nil {
		log.Printf("unable to start medicine transaction: %v", err)
		return
	}
	stmt, err := tx.Preparex(`INSERT OR IGNORE INTO medicines
        (id, name, batch_number, manufacture_date, expiry_date, quantity_on_hand, unit_price)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		log.Printf("unable to prepare medicine insert: %v", err)
		_ = tx.Rollback()
		return
	}
	defer stmt.Close()

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("unable to read medicine row: %v", err)
			continue
		}
		if len(record) < 7 {
			continue
		}

		rec := domain.MedicineRecord{
			ID:              strings.TrimSpace(record[0]),
			Name:            strings.TrimSpace(record[1]),
			BatchNumber:     strings.TrimSpace(record[2]),
			ManufactureDate: strings.TrimSpace(record[3]),
			ExpiryDate:      strings.TrimSpace(record[4]),
		}
		rec.QuantityOnHand, _ = strconv.ParseInt(strings.TrimSpace(record[5]), 10, 64)
		rec.UnitPrice, _ = strconv.ParseInt(strings.TrimSpace(record[6]), 10, 64)

		if err := rec.Validate(); err != nil {
			log.Printf("skipping medicine row %s: %v", rec.ID, err)
			continue
		}

		if _, err := stmt.Exec(rec.ID, rec.Name, rec.BatchNumber, rec.ManufactureDate,
			rec.ExpiryDate, rec.QuantityOnHand, rec.UnitPrice); err != nil {
			log.Printf("unable to insert medicine %s: %v", rec.ID, err)
		} else {
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("unable to commit medicine seed: %v", err)
	} else {
		log.Printf("seeded medicine catalog with %d rows", rows)
	}
}
