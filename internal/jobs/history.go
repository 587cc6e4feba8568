package jobs

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/linkcheckerpro/linkchecker/internal/models"
)

// historyID picks the identifier a saved HistoryEntry is filed under: the
// owning job's ID when one exists, or a freshly minted scan_<unix-ms>_<random>
// id otherwise.
func historyID(job *models.ScanJob) string {
	if job != nil && job.ID != "" {
		return job.ID
	}
	return mintScanID()
}

func mintScanID() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("scan_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(buf[:]))
}
