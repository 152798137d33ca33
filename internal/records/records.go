// Package records provides the typed record structures persisted in each
// table of the local database. Field order follows column order; nullable
// columns map to pointer fields.
package records

import (
	"time"

	"github.com/flowydb/flowydb/internal/schema"
)

// Record is implemented by every typed record.
type Record interface {
	// TableName returns the table the record is stored in.
	TableName() string

	// PrimaryKey returns the key values in primary-key column order.
	PrimaryKey() []interface{}
}

// AFCollabMetadata holds the sync state of one collaboration object.
type AFCollabMetadata struct {
	ObjectID            string `db:"object_id" gorm:"column:object_id;primaryKey" json:"object_id"`
	UpdatedAt           int64  `db:"updated_at" gorm:"column:updated_at" json:"updated_at"`
	PrevSyncStateVector []byte `db:"prev_sync_state_vector" gorm:"column:prev_sync_state_vector" json:"prev_sync_state_vector"`
	CollabType          int32  `db:"collab_type" gorm:"column:collab_type" json:"collab_type"`
}

func (AFCollabMetadata) TableName() string { return schema.TableAFCollabMetadata }

func (r AFCollabMetadata) PrimaryKey() []interface{} { return []interface{}{r.ObjectID} }

// ChatLocalSetting is the local model configuration of one chat.
type ChatLocalSetting struct {
	ChatID         string `db:"chat_id" gorm:"column:chat_id;primaryKey" json:"chat_id"`
	LocalModelPath string `db:"local_model_path" gorm:"column:local_model_path" json:"local_model_path"`
	LocalModelName string `db:"local_model_name" gorm:"column:local_model_name" json:"local_model_name"`
}

func (ChatLocalSetting) TableName() string { return schema.TableChatLocalSetting }

func (r ChatLocalSetting) PrimaryKey() []interface{} { return []interface{}{r.ChatID} }

// ChatMessage is a single chat message. ReplyMessageID links a reply to the
// question it answers.
type ChatMessage struct {
	MessageID      int64   `db:"message_id" gorm:"column:message_id;primaryKey" json:"message_id"`
	ChatID         string  `db:"chat_id" gorm:"column:chat_id" json:"chat_id"`
	Content        string  `db:"content" gorm:"column:content" json:"content"`
	CreatedAt      int64   `db:"created_at" gorm:"column:created_at" json:"created_at"`
	AuthorType     int64   `db:"author_type" gorm:"column:author_type" json:"author_type"`
	AuthorID       string  `db:"author_id" gorm:"column:author_id" json:"author_id"`
	ReplyMessageID *int64  `db:"reply_message_id" gorm:"column:reply_message_id" json:"reply_message_id,omitempty"`
	Metadata       *string `db:"metadata" gorm:"column:metadata" json:"metadata,omitempty"`
	IsSync         bool    `db:"is_sync" gorm:"column:is_sync" json:"is_sync"`
}

func (ChatMessage) TableName() string { return schema.TableChatMessage }

func (r ChatMessage) PrimaryKey() []interface{} { return []interface{}{r.MessageID} }

// Chat is a chat session.
type Chat struct {
	ChatID    string  `db:"chat_id" gorm:"column:chat_id;primaryKey" json:"chat_id"`
	CreatedAt int64   `db:"created_at" gorm:"column:created_at" json:"created_at"`
	Metadata  string  `db:"metadata" gorm:"column:metadata" json:"metadata"`
	RagIDs    *string `db:"rag_ids" gorm:"column:rag_ids" json:"rag_ids,omitempty"`
	IsSync    bool    `db:"is_sync" gorm:"column:is_sync" json:"is_sync"`
	Summary   string  `db:"summary" gorm:"column:summary" json:"summary"`
}

func (Chat) TableName() string { return schema.TableChat }

func (r Chat) PrimaryKey() []interface{} { return []interface{}{r.ChatID} }

// CollabSnapshot is a point-in-time copy of a collaboration object.
type CollabSnapshot struct {
	ID         string `db:"id" gorm:"column:id;primaryKey" json:"id"`
	ObjectID   string `db:"object_id" gorm:"column:object_id" json:"object_id"`
	Title      string `db:"title" gorm:"column:title" json:"title"`
	Desc       string `db:"desc" gorm:"column:desc" json:"desc"`
	CollabType string `db:"collab_type" gorm:"column:collab_type" json:"collab_type"`
	Timestamp  int64  `db:"timestamp" gorm:"column:timestamp" json:"timestamp"`
	Data       []byte `db:"data" gorm:"column:data" json:"data"`
}

func (CollabSnapshot) TableName() string { return schema.TableCollabSnapshot }

func (r CollabSnapshot) PrimaryKey() []interface{} { return []interface{}{r.ID} }

// IndexCollabRecord remembers the content hash last written to the search index.
type IndexCollabRecord struct {
	OID         string `db:"oid" gorm:"column:oid;primaryKey" json:"oid"`
	WorkspaceID string `db:"workspace_id" gorm:"column:workspace_id" json:"workspace_id"`
	ContentHash string `db:"content_hash" gorm:"column:content_hash" json:"content_hash"`
}

func (IndexCollabRecord) TableName() string { return schema.TableIndexCollabRecord }

func (r IndexCollabRecord) PrimaryKey() []interface{} { return []interface{}{r.OID} }

// LocalAIModel is an entry of the local model registry.
type LocalAIModel struct {
	Name      string `db:"name" gorm:"column:name;primaryKey" json:"name"`
	ModelType int16  `db:"model_type" gorm:"column:model_type" json:"model_type"`
}

func (LocalAIModel) TableName() string { return schema.TableLocalAIModel }

func (r LocalAIModel) PrimaryKey() []interface{} { return []interface{}{r.Name} }

// UploadFilePart tracks one finished part of a multipart upload.
type UploadFilePart struct {
	UploadID string `db:"upload_id" gorm:"column:upload_id;primaryKey" json:"upload_id"`
	ETag     string `db:"e_tag" gorm:"column:e_tag;primaryKey" json:"e_tag"`
	PartNum  int32  `db:"part_num" gorm:"column:part_num" json:"part_num"`
}

func (UploadFilePart) TableName() string { return schema.TableUploadFilePart }

func (r UploadFilePart) PrimaryKey() []interface{} { return []interface{}{r.UploadID, r.ETag} }

// UploadFile is the state of a file upload session.
type UploadFile struct {
	WorkspaceID   string `db:"workspace_id" gorm:"column:workspace_id;primaryKey" json:"workspace_id"`
	FileID        string `db:"file_id" gorm:"column:file_id;primaryKey" json:"file_id"`
	ParentDir     string `db:"parent_dir" gorm:"column:parent_dir;primaryKey" json:"parent_dir"`
	LocalFilePath string `db:"local_file_path" gorm:"column:local_file_path" json:"local_file_path"`
	ContentType   string `db:"content_type" gorm:"column:content_type" json:"content_type"`
	ChunkSize     int32  `db:"chunk_size" gorm:"column:chunk_size" json:"chunk_size"`
	NumChunk      int32  `db:"num_chunk" gorm:"column:num_chunk" json:"num_chunk"`
	UploadID      string `db:"upload_id" gorm:"column:upload_id" json:"upload_id"`
	CreatedAt     int64  `db:"created_at" gorm:"column:created_at" json:"created_at"`
	IsFinish      bool   `db:"is_finish" gorm:"column:is_finish" json:"is_finish"`
}

func (UploadFile) TableName() string { return schema.TableUploadFile }

func (r UploadFile) PrimaryKey() []interface{} {
	return []interface{}{r.WorkspaceID, r.FileID, r.ParentDir}
}

// UserDataMigrationRecord is one entry of the applied-migration log.
type UserDataMigrationRecord struct {
	ID            int32     `db:"id" gorm:"column:id;primaryKey" json:"id"`
	MigrationName string    `db:"migration_name" gorm:"column:migration_name" json:"migration_name"`
	ExecutedAt    time.Time `db:"executed_at" gorm:"column:executed_at" json:"executed_at"`
}

func (UserDataMigrationRecord) TableName() string { return schema.TableUserDataMigrationRecords }

func (r UserDataMigrationRecord) PrimaryKey() []interface{} { return []interface{}{r.ID} }

// User is the signed-in user profile.
type User struct {
	ID        string `db:"id" gorm:"column:id;primaryKey" json:"id"`
	Name      string `db:"name" gorm:"column:name" json:"name"`
	IconURL   string `db:"icon_url" gorm:"column:icon_url" json:"icon_url"`
	Token     string `db:"token" gorm:"column:token" json:"-"`
	Email     string `db:"email" gorm:"column:email" json:"email"`
	AuthType  int32  `db:"auth_type" gorm:"column:auth_type" json:"auth_type"`
	UpdatedAt int64  `db:"updated_at" gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string { return schema.TableUser }

func (r User) PrimaryKey() []interface{} { return []interface{}{r.ID} }

// UserWorkspace is a workspace the user belongs to.
type UserWorkspace struct {
	ID                string `db:"id" gorm:"column:id;primaryKey" json:"id"`
	Name              string `db:"name" gorm:"column:name" json:"name"`
	UID               int64  `db:"uid" gorm:"column:uid" json:"uid"`
	CreatedAt         int64  `db:"created_at" gorm:"column:created_at" json:"created_at"`
	DatabaseStorageID string `db:"database_storage_id" gorm:"column:database_storage_id" json:"database_storage_id"`
	Icon              string `db:"icon" gorm:"column:icon" json:"icon"`
	MemberCount       int64  `db:"member_count" gorm:"column:member_count" json:"member_count"`
	Role              *int32 `db:"role" gorm:"column:role" json:"role,omitempty"`
	WorkspaceType     int32  `db:"workspace_type" gorm:"column:workspace_type" json:"workspace_type"`
}

func (UserWorkspace) TableName() string { return schema.TableUserWorkspace }

func (r UserWorkspace) PrimaryKey() []interface{} { return []interface{}{r.ID} }

// WorkspaceMember is one entry of a workspace roster.
type WorkspaceMember struct {
	Email       string    `db:"email" gorm:"column:email;primaryKey" json:"email"`
	Role        int32     `db:"role" gorm:"column:role" json:"role"`
	Name        string    `db:"name" gorm:"column:name" json:"name"`
	AvatarURL   *string   `db:"avatar_url" gorm:"column:avatar_url" json:"avatar_url,omitempty"`
	UID         int64     `db:"uid" gorm:"column:uid" json:"uid"`
	WorkspaceID string    `db:"workspace_id" gorm:"column:workspace_id;primaryKey" json:"workspace_id"`
	UpdatedAt   time.Time `db:"updated_at" gorm:"column:updated_at" json:"updated_at"`
	JoinedAt    *int64    `db:"joined_at" gorm:"column:joined_at" json:"joined_at,omitempty"`
}

func (WorkspaceMember) TableName() string { return schema.TableWorkspaceMembers }

func (r WorkspaceMember) PrimaryKey() []interface{} { return []interface{}{r.Email, r.WorkspaceID} }

// WorkspaceSetting holds per-workspace settings.
type WorkspaceSetting struct {
	ID                    string `db:"id" gorm:"column:id;primaryKey" json:"id"`
	DisableSearchIndexing bool   `db:"disable_search_indexing" gorm:"column:disable_search_indexing" json:"disable_search_indexing"`
	AIModel               string `db:"ai_model" gorm:"column:ai_model" json:"ai_model"`
}

func (WorkspaceSetting) TableName() string { return schema.TableWorkspaceSetting }

func (r WorkspaceSetting) PrimaryKey() []interface{} { return []interface{}{r.ID} }

// WorkspaceSharedUser is a sharing grant on a view, keyed by the grantee email.
type WorkspaceSharedUser struct {
	WorkspaceID string `db:"workspace_id" gorm:"column:workspace_id;primaryKey" json:"workspace_id"`
	ViewID      string `db:"view_id" gorm:"column:view_id;primaryKey" json:"view_id"`
	Email       string `db:"email" gorm:"column:email;primaryKey" json:"email"`
	Name        string `db:"name" gorm:"column:name" json:"name"`
	AvatarURL   string `db:"avatar_url" gorm:"column:avatar_url" json:"avatar_url"`
	Role        int32  `db:"role" gorm:"column:role" json:"role"`
	AccessLevel int32  `db:"access_level" gorm:"column:access_level" json:"access_level"`
	Order       int32  `db:"order" gorm:"column:order" json:"order"`
}

func (WorkspaceSharedUser) TableName() string { return schema.TableWorkspaceSharedUser }

func (r WorkspaceSharedUser) PrimaryKey() []interface{} {
	return []interface{}{r.WorkspaceID, r.ViewID, r.Email}
}

// WorkspaceSharedView is a sharing grant on a view, keyed by the viewer uid.
type WorkspaceSharedView struct {
	UID          int64      `db:"uid" gorm:"column:uid;primaryKey" json:"uid"`
	WorkspaceID  string     `db:"workspace_id" gorm:"column:workspace_id;primaryKey" json:"workspace_id"`
	ViewID       string     `db:"view_id" gorm:"column:view_id;primaryKey" json:"view_id"`
	PermissionID int32      `db:"permission_id" gorm:"column:permission_id" json:"permission_id"`
	CreatedAt    *time.Time `db:"created_at" gorm:"column:created_at" json:"created_at,omitempty"`
}

func (WorkspaceSharedView) TableName() string { return schema.TableWorkspaceSharedView }

func (r WorkspaceSharedView) PrimaryKey() []interface{} {
	return []interface{}{r.UID, r.WorkspaceID, r.ViewID}
}

// Models returns one zero value of every record type, in table declaration order.
func Models() []Record {
	return []Record{
		&AFCollabMetadata{},
		&ChatLocalSetting{},
		&ChatMessage{},
		&Chat{},
		&CollabSnapshot{},
		&IndexCollabRecord{},
		&LocalAIModel{},
		&UploadFilePart{},
		&UploadFile{},
		&UserDataMigrationRecord{},
		&User{},
		&UserWorkspace{},
		&WorkspaceMember{},
		&WorkspaceSetting{},
		&WorkspaceSharedUser{},
		&WorkspaceSharedView{},
	}
}
