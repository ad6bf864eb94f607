package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open はSQLiteデータベース接続を開く。
// databasePathはSQLiteファイルのパスを指定する（例: "movies.db"）。
// 外部キー制約とWALモードを接続パラメータで有効化する。
// sql.Openは接続を試行しないため、実際の接続確認にはdb.Ping()を使用すること。
func Open(databasePath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", databasePath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLiteは書き込みの同時実行を持たないため、コネクションを1本に制限して
	// SQLITE_BUSYを避ける。
	db.SetMaxOpenConns(1)

	return db, nil
}
