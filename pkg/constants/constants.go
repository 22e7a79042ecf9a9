package constants

// gin.Context / session 中使用的键
const (
	DbField     = "_xw_db"
	UserField   = "_xw_user"
	UserIDField = "_xw_uid"
	// UserIDKey 字符串形式的用户 ID，限流按用户维度时读取
	UserIDKey   = "user_id"
	LangField   = "lang"
	SessionName = "xianwai_session"
)
