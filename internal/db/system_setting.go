package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SystemSetting 存储单例配置的键值对，频道策略与管理员凭据都落在这里。
type SystemSetting struct {
	gorm.Model
	Key   string `gorm:"size:100;uniqueIndex;not null"`
	Value string `gorm:"type:text"`
}

// TableName 自定义表名以保持命名一致。
func (SystemSetting) TableName() string {
	return "system_settings"
}

const (
	// SettingKeyChannelURL 表示频道链接。
	SettingKeyChannelURL = "channel_policy.url"
	// SettingKeyChannelName 表示频道展示名称。
	SettingKeyChannelName = "channel_policy.name"
	// SettingKeyChannelID 表示解析后的频道 ID。
	SettingKeyChannelID = "channel_policy.id"
	// SettingKeyChannelEnabled 表示是否要求订阅频道，该键存在即视为策略已配置。
	SettingKeyChannelEnabled = "channel_policy.enabled"

	// SettingKeyAdminEmail 表示后台管理员邮箱。
	SettingKeyAdminEmail = "admin.email"
	// SettingKeyAdminPasswordHash 表示后台管理员密码的 bcrypt 哈希。
	SettingKeyAdminPasswordHash = "admin.password_hash"
)

func readSettings(tx *gorm.DB, keys ...string) (map[string]string, error) {
	var records []SystemSetting
	if err := tx.Where("key IN ?", keys).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	values := make(map[string]string, len(records))
	for _, record := range records {
		values[record.Key] = record.Value
	}
	return values, nil
}

func upsertSetting(tx *gorm.DB, key, value string) error {
	setting := SystemSetting{Key: key, Value: value}
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      value,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(&setting).Error; err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}

func upsertSettings(ctx context.Context, gdb *gorm.DB, values map[string]string) error {
	return gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			if err := upsertSetting(tx, key, value); err != nil {
				return err
			}
		}
		return nil
	})
}
