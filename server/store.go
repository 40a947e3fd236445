package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hatlonely/tablegate/jsonx"
	"github.com/hatlonely/tablegate/validate"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type StoreOptions struct {
	// Driver 数据库驱动：sqlite, mysql
	Driver string `cfg:"driver" def:"sqlite" validate:"oneof=sqlite mysql"`
	// DSN sqlite 为文件路径或 :memory:，mysql 为 user:pass@tcp(host:port)/db?parseTime=true
	DSN string `cfg:"dsn" def:"tablegate.db"`
	// ColumnCacheSize 列信息缓存的表数量
	ColumnCacheSize int `cfg:"columnCacheSize" def:"256" validate:"min=1"`
	MaxOpenConns    int `cfg:"maxOpenConns" def:"10"`
}

// tableRow 新建表的结构，列顺序为 id, name, created_at, age
type tableRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id"`
	Name      string    `gorm:"type:varchar(100);not null;column:name"`
	CreatedAt time.Time `gorm:"type:timestamp;default:CURRENT_TIMESTAMP;column:created_at"`
	Age       int       `gorm:"type:int;not null;column:age"`
}

type column struct {
	Name string
	Type string
}

func (c column) isString() bool {
	t := strings.ToLower(c.Type)
	return strings.Contains(t, "char") || strings.Contains(t, "text")
}

func (c column) isInteger() bool {
	return strings.Contains(strings.ToLower(c.Type), "int")
}

// Store 用户表的管理，表名即用户输入的名字，所有标识符通过 clause 转义
type Store struct {
	db      *gorm.DB
	driver  string
	columns *lru.Cache[string, []column]
}

func NewStoreWithOptions(options *StoreOptions) (*Store, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}

	config := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	var db *gorm.DB
	var err error
	switch options.Driver {
	case "", "sqlite":
		db, err = gorm.Open(sqlite.Open(options.DSN), config)
	case "mysql":
		db, err = gorm.Open(mysql.Open(options.DSN), config)
	default:
		return nil, errors.Errorf("unsupported database driver: %s", options.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sql.DB")
	}
	if options.Driver == "mysql" {
		sqlDB.SetMaxOpenConns(options.MaxOpenConns)
	} else {
		// sqlite 的 :memory: 每个连接是独立的库
		sqlDB.SetMaxOpenConns(1)
	}

	size := options.ColumnCacheSize
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, []column](size)
	if err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "failed to create column cache")
	}

	driver := options.Driver
	if driver == "" {
		driver = "sqlite"
	}
	return &Store{db: db, driver: driver, columns: cache}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) hasTable(ctx context.Context, name string) bool {
	return s.db.WithContext(ctx).Migrator().HasTable(name)
}

// tableColumns 按定义顺序返回列信息，结果缓存到表结构变化为止
func (s *Store) tableColumns(ctx context.Context, name string) ([]column, error) {
	if cols, ok := s.columns.Get(name); ok {
		return cols, nil
	}
	types, err := s.db.WithContext(ctx).Migrator().ColumnTypes(name)
	if err != nil {
		return nil, err
	}
	cols := make([]column, 0, len(types))
	for _, t := range types {
		cols = append(cols, column{Name: t.Name(), Type: t.DatabaseTypeName()})
	}
	s.columns.Add(name, cols)
	return cols, nil
}

// CreateTable 表名长度 1 到 63
func (s *Store) CreateTable(ctx context.Context, name string) (string, error) {
	if n := utf8.RuneCountInString(name); n < 1 || n > 63 {
		return "", badRequest("Table name must be between 1 and 63 characters")
	}
	if s.hasTable(ctx, name) {
		return "", badRequest(fmt.Sprintf("Table '%s' already exists!", name))
	}

	if err := s.db.WithContext(ctx).Table(name).Migrator().CreateTable(&tableRow{}); err != nil {
		return "", s.dbError("Error creating table", name, err)
	}
	s.columns.Remove(name)
	return fmt.Sprintf("Table '%s' created successfully!", name), nil
}

// InsertRow 写入第一个字符串列和第一个非 id 的整数列
func (s *Store) InsertRow(ctx context.Context, table string, name string, age int) (string, error) {
	if !s.hasTable(ctx, table) {
		return "", notFound(fmt.Sprintf("Table '%s' does not exist. Please create the table first.", table))
	}

	cols, err := s.tableColumns(ctx, table)
	if err != nil {
		return "", s.dbError("Error inserting data into table '"+table+"'", table, err)
	}
	var nameColumn, ageColumn string
	for _, c := range cols {
		if nameColumn == "" && c.isString() {
			nameColumn = c.Name
		}
		if ageColumn == "" && c.isInteger() && !strings.EqualFold(c.Name, "id") {
			ageColumn = c.Name
		}
	}
	if nameColumn == "" || ageColumn == "" {
		return "", badRequest(fmt.Sprintf("Table '%s' must have one string column and one integer column", table))
	}

	if err := s.db.WithContext(ctx).Table(table).Create(map[string]any{
		nameColumn: name,
		ageColumn:  age,
	}).Error; err != nil {
		return "", s.dbError("Error inserting data into table '"+table+"'", table, err)
	}
	return fmt.Sprintf("Data inserted into table '%s' successfully!", table), nil
}

// ListTables 返回 [{table_name, table_schema, table_type}]，按表名排序
func (s *Store) ListTables(ctx context.Context) ([]*jsonx.Object, error) {
	migrator := s.db.WithContext(ctx).Migrator()
	names, err := migrator.GetTables()
	if err != nil {
		return nil, s.dbError("Error listing tables", "", err)
	}
	sort.Strings(names)

	schema := "main"
	if s.driver == "mysql" {
		schema = migrator.CurrentDatabase()
	}
	tables := make([]*jsonx.Object, 0, len(names))
	for _, name := range names {
		if strings.HasPrefix(name, "sqlite_") {
			continue
		}
		obj := jsonx.NewObject()
		obj.Set("table_name", name)
		obj.Set("table_schema", schema)
		obj.Set("table_type", "BASE TABLE")
		tables = append(tables, obj)
	}
	return tables, nil
}

// DescribeTable 返回表中的所有行，字段顺序与列定义一致
func (s *Store) DescribeTable(ctx context.Context, table string) ([]*jsonx.Object, error) {
	if !s.hasTable(ctx, table) {
		return nil, notFound(fmt.Sprintf("Table '%s' does not exist", table))
	}

	rows, err := s.db.WithContext(ctx).Table(table).Rows()
	if err != nil {
		return nil, s.dbError("Error reading table", table, err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, s.dbError("Error reading table", table, err)
	}
	return result, nil
}

func scanRows(rows *sql.Rows) ([]*jsonx.Object, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := []*jsonx.Object{}
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		obj := jsonx.NewObject()
		for i, name := range names {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			obj.Set(name, values[i])
		}
		result = append(result, obj)
	}
	return result, rows.Err()
}

func (s *Store) DeleteTable(ctx context.Context, table string) (string, error) {
	if !s.hasTable(ctx, table) {
		return "", notFound(fmt.Sprintf("Table '%s' does not exist", table))
	}
	if err := s.db.WithContext(ctx).Migrator().DropTable(table); err != nil {
		return "", s.dbError("Error deleting table", table, err)
	}
	s.columns.Remove(table)
	return fmt.Sprintf("Table '%s' deleted successfully", table), nil
}

type UpdateTableRequest struct {
	TableName    string  `json:"table_name"`
	NewTableName *string `json:"new_table_name"`
	NewName      *string `json:"new_name"`
	NewAge       *int    `json:"new_age"`
	Username     string  `json:"username"`
}

type UpdateResult struct {
	Message string   `json:"message"`
	Changes []string `json:"changes"`
}

// UpdateTable 依次执行重命名表、重命名 name 列、更新所有 age，在一个事务中完成
func (s *Store) UpdateTable(ctx context.Context, req *UpdateTableRequest) (*UpdateResult, error) {
	table := req.TableName
	newTable := deref(req.NewTableName)
	newName := deref(req.NewName)

	if newName != "" && !validate.ColumnIdentifier(newName) {
		return nil, badRequest("Invalid column name. Column names must be valid SQL identifiers.")
	}
	if newTable != "" && s.hasTable(ctx, newTable) {
		return nil, badRequest("Table with the new name already exists")
	}
	if !s.hasTable(ctx, table) {
		return nil, notFound(fmt.Sprintf("Source table '%s' does not exist", table))
	}

	changes := []string{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if newTable != "" {
			if err := tx.Migrator().RenameTable(table, newTable); err != nil {
				return err
			}
			s.columns.Remove(table)
			changes = append(changes, fmt.Sprintf("Table '%s' renamed to '%s'", table, newTable))
			table = newTable
		}

		if newName != "" {
			types, err := tx.Migrator().ColumnTypes(table)
			if err != nil {
				return err
			}
			var names, strs []string
			for _, t := range types {
				c := column{Name: t.Name(), Type: t.DatabaseTypeName()}
				names = append(names, c.Name)
				if c.isString() {
					strs = append(strs, c.Name)
				}
			}
			if len(strs) == 0 {
				return notFound(fmt.Sprintf("No string columns found in table '%s' to rename", table))
			}
			if contains(names, newName) {
				return badRequest(fmt.Sprintf("Column '%s' already exists in table '%s'", newName, table))
			}
			oldName := "name"
			if !contains(names, "name") {
				oldName = strs[0]
			}
			if err := tx.Exec("ALTER TABLE ? RENAME COLUMN ? TO ?",
				clause.Table{Name: table}, clause.Column{Name: oldName}, clause.Column{Name: newName}).Error; err != nil {
				return err
			}
			s.columns.Remove(table)
			changes = append(changes, fmt.Sprintf("Column '%s' renamed to '%s'", oldName, newName))
		}

		if req.NewAge != nil {
			if !tx.Migrator().HasColumn(table, "age") {
				return notFound(fmt.Sprintf("Column 'age' does not exist in table '%s'", table))
			}
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
				Table(table).Update("age", *req.NewAge).Error; err != nil {
				return err
			}
			changes = append(changes, fmt.Sprintf("Updated all ages to %d", *req.NewAge))
		}
		return nil
	})
	if err != nil {
		var he *HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, &HTTPError{Status: http.StatusInternalServerError, Detail: "Database error: " + err.Error(), Err: err}
	}
	return &UpdateResult{Message: "Changes applied successfully!", Changes: changes}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
