package document

import "net/url"

const driveFileURL = "https://drive.google.com/file/d/"

// DriveFileURL links a document the remote bridge stored in Drive.
func DriveFileURL(fileID string) string {
	return driveFileURL + url.PathEscape(fileID) + "/view"
}
