package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Contract struct {
	ID               uint64          `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	ContractUUID     string          `gorm:"column:contract_uuid;type:varchar(64);uniqueIndex;not null;comment:全局唯一ID"`
	ExternalID       *string         `gorm:"column:external_id;type:varchar(64);uniqueIndex;comment:登记册原生ID"`
	Title            string          `gorm:"column:title;type:varchar(512);not null;index:idx_contract_match,priority:1;comment:合同标题"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(18,2);not null;comment:不含税金额"`
	Category         string          `gorm:"column:category;type:varchar(128);comment:类别"`
	EffectiveDate    time.Time       `gorm:"column:effective_date;type:timestamp;not null;index;comment:签订日期"`
	Supplier         string          `gorm:"column:supplier;type:varchar(256);not null;index:idx_contract_match,priority:3;comment:供应商"`
	SupplierICO      *string         `gorm:"column:supplier_ico;type:varchar(16);comment:供应商税号"`
	Authority        string          `gorm:"column:authority;type:varchar(256);not null;index:idx_contract_match,priority:2;comment:发包机关"`
	AuthorityAddress *string         `gorm:"column:authority_address;type:varchar(512);comment:发包机关地址"`
	ProcedureType    string          `gorm:"column:procedure_type;type:varchar(128);comment:采购程序"`
	Lat              *float64        `gorm:"column:lat;comment:纬度"`
	Lng              *float64        `gorm:"column:lng;comment:经度"`
	Parties          datatypes.JSON  `gorm:"column:parties;type:jsonb;comment:合同方评分明细"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime;comment:创建时间"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime;comment:更新时间"`
}

// HasCoordinates 是否已有坐标
func (c *Contract) HasCoordinates() bool {
	return c.Lat != nil && c.Lng != nil
}

// Supplier 从合同派生的供应商登记，名称与税号各自唯一
type Supplier struct {
	ID             uint64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	Name           string     `gorm:"column:name;type:varchar(256);uniqueIndex;not null;comment:供应商名称"`
	ICO            *string    `gorm:"column:ico;type:varchar(16);uniqueIndex;comment:税号"`
	IncorporatedAt *time.Time `gorm:"column:incorporated_at;type:timestamp;comment:成立日期"`
	EmployeeCount  *int       `gorm:"column:employee_count;comment:员工数"`
	LastSeenAt     *time.Time `gorm:"column:last_seen_at;type:timestamp;comment:最近一次在合同中出现"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime;comment:创建时间"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime;comment:更新时间"`
}

// Amendment 合同金额调整，随合同级联删除
type Amendment struct {
	ID            uint64          `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	ContractID    uint64          `gorm:"column:contract_id;not null;index;comment:关联合同ID"`
	Contract      *Contract       `gorm:"foreignKey:ContractID;constraint:OnDelete:CASCADE"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(18,2);not null;comment:调整金额"`
	EffectiveDate time.Time       `gorm:"column:effective_date;type:timestamp;not null;comment:生效日期"`
	Synthetic     bool            `gorm:"column:synthetic;not null;default:false;comment:是否为合成数据"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime;comment:创建时间"`
}

func (Contract) TableName() string  { return "contracts" }
func (Supplier) TableName() string  { return "suppliers" }
func (Amendment) TableName() string { return "amendments" }
