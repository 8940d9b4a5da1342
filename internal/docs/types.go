package docs

import "time"

// DocumentRoot is the mirror record for one uploaded document, keyed by the
// content hash of the original plaintext. The ledger stays the source of
// truth for provenance; the mirror exists for query efficiency.
type DocumentRoot struct {
	RootHash    string     `json:"rootHash"`
	Uploader    string     `json:"uploaderAddress"`
	Domain      string     `json:"domain"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Revoked     bool       `json:"revoked"`
	TxHash      string     `json:"txHash,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	Versions    []Version  `json:"versions"`
}

// Version is one verifiable instance of a root's content.
type Version struct {
	Hash       string     `json:"hash"`
	FileCID    string     `json:"fileCid"`
	MetaCID    string     `json:"metaCid"`
	FileName   string     `json:"fileName,omitempty"`
	FileType   string     `json:"fileType,omitempty"`
	IVBase64   string     `json:"ivBase64,omitempty"`
	Verified   bool       `json:"verified"`
	Verifier   string     `json:"verifier,omitempty"`
	UploadedAt time.Time  `json:"uploadedAt"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
}

// KeyRecord holds the symmetric key material for one version. Created at
// upload time, read-only thereafter; the custody store has no delete path.
type KeyRecord struct {
	VersionHash  string    `json:"-"`
	AESKeyBase64 string    `json:"aesKeyBase64"`
	IVBase64     string    `json:"ivBase64"`
	Uploader     string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

// PendingDoc is a root with only its unverified versions, as surfaced to
// reviewers.
type PendingDoc struct {
	RootHash string           `json:"rootHash"`
	Title    string           `json:"title"`
	Domain   string           `json:"domain"`
	Versions []PendingVersion `json:"versions"`
}

// PendingVersion points a reviewer at the metadata object for one version.
type PendingVersion struct {
	Hash string `json:"hash"`
	CID  string `json:"cid"`
}

// PinRequest carries one encrypted upload into the pin step.
type PinRequest struct {
	Content      []byte
	RootHash     string
	AESKeyBase64 string
	IVBase64     string
	Domain       string
	Title        string
	Description  string
	FileName     string
	FileType     string
}

// PinResult returns both content ids from the pin step.
type PinResult struct {
	FileCID string `json:"fileCid"`
	MetaCID string `json:"metaCid"`
}

// FinalizeRequest records a confirmed upload into the mirror.
type FinalizeRequest struct {
	RootHash    string
	Domain      string
	Title       string
	Description string
	FileCID     string
	MetaCID     string
	FileName    string
	FileType    string
	IVBase64    string
	TxHash      string
	ExpiresAt   *time.Time
}

// blobMetadata is the JSON object pinned alongside the encrypted file.
type blobMetadata struct {
	FileCID     string `json:"fileCid"`
	RootHash    string `json:"rootHash"`
	IVBase64    string `json:"ivBase64"`
	Title       string `json:"title"`
	Domain      string `json:"domain"`
	Description string `json:"description,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	FileType    string `json:"fileType,omitempty"`
}
