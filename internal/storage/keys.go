package storage

import "fmt"

// Key prefixes, namespaced by purpose.
const (
	uploadPrefix = "uploads/"
	jobPrefix    = "jobs/"
)

// UploadKey builds the blob key for original submitted content.
func UploadKey(jobID, filename string) string {
	return fmt.Sprintf("%s%s/%s", uploadPrefix, jobID, filename)
}

// JobRecordKey builds the blob key for a serialized job record.
func JobRecordKey(jobID string) string {
	return fmt.Sprintf("%s%s.json", jobPrefix, jobID)
}

// JobRecordPrefix returns the listing prefix for job records.
func JobRecordPrefix() string {
	return jobPrefix
}
