package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ContentVersion represents a Salesforce ContentVersion record (one stored
// file revision).
type ContentVersion struct {
	ID            string `json:"Id" salesforce:"Id"`
	Title         string `json:"Title" salesforce:"Title"`
	FileExtension string `json:"FileExtension" salesforce:"FileExtension"`
	VersionData   string `json:"VersionData" salesforce:"VersionData"`
}

// contentVersionFields are the SOQL fields selected for ContentVersion queries.
var contentVersionFields = []string{"Id", "Title", "FileExtension", "VersionData"}

// FindContentVersion queries Salesforce for a ContentVersion by its ID.
// Returns nil if no record is found.
func FindContentVersion(ctx context.Context, c Client, id string) (*ContentVersion, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM ContentVersion WHERE Id = '%s'",
		strings.Join(contentVersionFields, ", "),
		escapeSoql(id),
	)

	var versions []ContentVersion
	if err := c.Query(ctx, soql, &versions); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find content version %s", id))
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return &versions[0], nil
}

// DownloadVersionData fetches the binary body of a ContentVersion.
func DownloadVersionData(ctx context.Context, c Client, id string) ([]byte, error) {
	return c.Download(ctx, VersionDataPath(id))
}

// VersionDataPath is the REST path of a ContentVersion's binary body.
func VersionDataPath(id string) string {
	return "/sobjects/ContentVersion/" + id + "/VersionData"
}

var soqlEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// escapeSoql escapes backslashes and single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return soqlEscaper.Replace(s)
}
