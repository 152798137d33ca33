package schema

import "github.com/flowydb/flowydb/pkg/types"

// Table names.
const (
	TableAFCollabMetadata         = "af_collab_metadata"
	TableChatLocalSetting         = "chat_local_setting_table"
	TableChatMessage              = "chat_message_table"
	TableChat                     = "chat_table"
	TableCollabSnapshot           = "collab_snapshot"
	TableIndexCollabRecord        = "index_collab_record_table"
	TableLocalAIModel             = "local_ai_model_table"
	TableUploadFilePart           = "upload_file_part"
	TableUploadFile               = "upload_file_table"
	TableUserDataMigrationRecords = "user_data_migration_records"
	TableUser                     = "user_table"
	TableUserWorkspace            = "user_workspace_table"
	TableWorkspaceMembers         = "workspace_members_table"
	TableWorkspaceSetting         = "workspace_setting_table"
	TableWorkspaceSharedUser      = "workspace_shared_user"
	TableWorkspaceSharedView      = "workspace_shared_view"
)

func col(name string, t types.ColumnType) types.ColumnDef {
	return types.ColumnDef{Name: name, Type: t}
}

func nullable(name string, t types.ColumnType) types.ColumnDef {
	return types.ColumnDef{Name: name, Type: t, Nullable: true}
}

func table(name string, pk []string, cols ...types.ColumnDef) types.TableDef {
	return types.TableDef{Name: name, Columns: cols, PrimaryKey: pk}
}

// declaredTables returns the table declarations of the local database.
// Column order is significant and matches the on-disk layout.
func declaredTables() []types.TableDef {
	return []types.TableDef{
		table(TableAFCollabMetadata, []string{"object_id"},
			col("object_id", types.TypeText),
			col("updated_at", types.TypeBigInt),
			col("prev_sync_state_vector", types.TypeBinary),
			col("collab_type", types.TypeInteger),
		),
		table(TableChatLocalSetting, []string{"chat_id"},
			col("chat_id", types.TypeText),
			col("local_model_path", types.TypeText),
			col("local_model_name", types.TypeText),
		),
		table(TableChatMessage, []string{"message_id"},
			col("message_id", types.TypeBigInt),
			col("chat_id", types.TypeText),
			col("content", types.TypeText),
			col("created_at", types.TypeBigInt),
			col("author_type", types.TypeBigInt),
			col("author_id", types.TypeText),
			nullable("reply_message_id", types.TypeBigInt),
			nullable("metadata", types.TypeText),
			col("is_sync", types.TypeBool),
		),
		table(TableChat, []string{"chat_id"},
			col("chat_id", types.TypeText),
			col("created_at", types.TypeBigInt),
			col("metadata", types.TypeText),
			nullable("rag_ids", types.TypeText),
			col("is_sync", types.TypeBool),
			col("summary", types.TypeText),
		),
		table(TableCollabSnapshot, []string{"id"},
			col("id", types.TypeText),
			col("object_id", types.TypeText),
			col("title", types.TypeText),
			col("desc", types.TypeText),
			col("collab_type", types.TypeText),
			col("timestamp", types.TypeBigInt),
			col("data", types.TypeBinary),
		),
		table(TableIndexCollabRecord, []string{"oid"},
			col("oid", types.TypeText),
			col("workspace_id", types.TypeText),
			col("content_hash", types.TypeText),
		),
		table(TableLocalAIModel, []string{"name"},
			col("name", types.TypeText),
			col("model_type", types.TypeSmallInt),
		),
		table(TableUploadFilePart, []string{"upload_id", "e_tag"},
			col("upload_id", types.TypeText),
			col("e_tag", types.TypeText),
			col("part_num", types.TypeInteger),
		),
		table(TableUploadFile, []string{"workspace_id", "file_id", "parent_dir"},
			col("workspace_id", types.TypeText),
			col("file_id", types.TypeText),
			col("parent_dir", types.TypeText),
			col("local_file_path", types.TypeText),
			col("content_type", types.TypeText),
			col("chunk_size", types.TypeInteger),
			col("num_chunk", types.TypeInteger),
			col("upload_id", types.TypeText),
			col("created_at", types.TypeBigInt),
			col("is_finish", types.TypeBool),
		),
		table(TableUserDataMigrationRecords, []string{"id"},
			col("id", types.TypeInteger),
			col("migration_name", types.TypeText),
			col("executed_at", types.TypeTimestamp),
		),
		table(TableUser, []string{"id"},
			col("id", types.TypeText),
			col("name", types.TypeText),
			col("icon_url", types.TypeText),
			col("token", types.TypeText),
			col("email", types.TypeText),
			col("auth_type", types.TypeInteger),
			col("updated_at", types.TypeBigInt),
		),
		table(TableUserWorkspace, []string{"id"},
			col("id", types.TypeText),
			col("name", types.TypeText),
			col("uid", types.TypeBigInt),
			col("created_at", types.TypeBigInt),
			col("database_storage_id", types.TypeText),
			col("icon", types.TypeText),
			col("member_count", types.TypeBigInt),
			nullable("role", types.TypeInteger),
			col("workspace_type", types.TypeInteger),
		),
		table(TableWorkspaceMembers, []string{"email", "workspace_id"},
			col("email", types.TypeText),
			col("role", types.TypeInteger),
			col("name", types.TypeText),
			nullable("avatar_url", types.TypeText),
			col("uid", types.TypeBigInt),
			col("workspace_id", types.TypeText),
			col("updated_at", types.TypeTimestamp),
			nullable("joined_at", types.TypeBigInt),
		),
		table(TableWorkspaceSetting, []string{"id"},
			col("id", types.TypeText),
			col("disable_search_indexing", types.TypeBool),
			col("ai_model", types.TypeText),
		),
		table(TableWorkspaceSharedUser, []string{"workspace_id", "view_id", "email"},
			col("workspace_id", types.TypeText),
			col("view_id", types.TypeText),
			col("email", types.TypeText),
			col("name", types.TypeText),
			col("avatar_url", types.TypeText),
			col("role", types.TypeInteger),
			col("access_level", types.TypeInteger),
			col("order", types.TypeInteger),
		),
		table(TableWorkspaceSharedView, []string{"uid", "workspace_id", "view_id"},
			col("uid", types.TypeBigInt),
			col("workspace_id", types.TypeText),
			col("view_id", types.TypeText),
			col("permission_id", types.TypeInteger),
			nullable("created_at", types.TypeTimestamp),
		),
	}
}

// joinAllowList names every table that may appear in a multi-table query.
var joinAllowList = []string{
	TableAFCollabMetadata,
	TableChatLocalSetting,
	TableChatMessage,
	TableChat,
	TableCollabSnapshot,
	TableIndexCollabRecord,
	TableLocalAIModel,
	TableUploadFilePart,
	TableUploadFile,
	TableUserDataMigrationRecords,
	TableUser,
	TableUserWorkspace,
	TableWorkspaceMembers,
	TableWorkspaceSetting,
	TableWorkspaceSharedUser,
	TableWorkspaceSharedView,
}

// declaredRelations lists references kept by application code. None of them
// is a FOREIGN KEY in the DDL.
func declaredRelations() []types.Relation {
	return []types.Relation{
		{Table: TableChatMessage, Column: "chat_id", ParentTable: TableChat, ParentColumn: "chat_id"},
		{Table: TableChatLocalSetting, Column: "chat_id", ParentTable: TableChat, ParentColumn: "chat_id"},
		{Table: TableUploadFilePart, Column: "upload_id", ParentTable: TableUploadFile, ParentColumn: "upload_id"},
		{Table: TableWorkspaceSetting, Column: "id", ParentTable: TableUserWorkspace, ParentColumn: "id"},
		{Table: TableWorkspaceMembers, Column: "workspace_id", ParentTable: TableUserWorkspace, ParentColumn: "id"},
		{Table: TableWorkspaceSharedView, Column: "workspace_id", ParentTable: TableUserWorkspace, ParentColumn: "id"},
		{Table: TableWorkspaceSharedUser, Column: "workspace_id", ParentTable: TableUserWorkspace, ParentColumn: "id"},
	}
}
