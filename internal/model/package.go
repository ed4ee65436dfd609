package model

import (
	"sort"
	"time"

	"github.com/hashicorp/go-version"
)

// 支持的游戏类型
const (
	ArchHoi4 = "hoi4" // 钢铁雄心Ⅳ
	ArchCk3  = "ck3"  // 十字军之王Ⅲ
	ArchEu4  = "eu4"  // 欧陆风云Ⅳ
	ArchEu5  = "eu5"  // 欧陆风云Ⅴ
	ArchSt   = "st"   // 群星
	ArchVic3 = "vic3" // 维多利亚3
	ArchCsl  = "csl"  // 城市：天际线
	ArchCsl2 = "csl2" // 城市：天际线2
)

// Arches 所有合法的游戏类型
var Arches = []string{ArchHoi4, ArchCk3, ArchEu4, ArchEu5, ArchSt, ArchVic3, ArchCsl, ArchCsl2}

// Package 包模型
type Package struct {
	// ID 由序列预先分配，插入时不自增
	ID uint `gorm:"primaryKey;autoIncrement:false" json:"id"`

	Name           string  `gorm:"size:100;not null" json:"name"`
	NormalizedName string  `gorm:"size:100;not null;uniqueIndex:idx_packages_name_arch,priority:1" json:"normalizedName"`
	Description    *string `gorm:"size:128" json:"description,omitempty"`
	Arch           string  `gorm:"size:10;not null;uniqueIndex:idx_packages_name_arch,priority:2" json:"arch"` // 游戏类型，如 hoi4, ck3
	IsActive       bool    `gorm:"not null;default:true;index" json:"isActive"`

	Author     string  `gorm:"size:50;not null" json:"author"`
	License    *string `gorm:"size:50" json:"license,omitempty"`
	Repository *string `gorm:"size:200" json:"repository,omitempty"`
	Homepage   *string `gorm:"size:200" json:"homepage,omitempty"`

	Versions []PackageVersion `gorm:"foreignKey:PackageID" json:"versions"`
}

// TableName 指定表名
func (Package) TableName() string {
	return "packages"
}

// SortVersions 按语义化版本号升序排列版本
func (p *Package) SortVersions() {
	sort.SliceStable(p.Versions, func(i, j int) bool {
		return p.Versions[i].Less(&p.Versions[j])
	})
}

// LatestVersion 返回最高版本，无版本时返回nil
func (p *Package) LatestVersion() *PackageVersion {
	var latest *PackageVersion
	for i := range p.Versions {
		if latest == nil || latest.Less(&p.Versions[i]) {
			latest = &p.Versions[i]
		}
	}
	return latest
}

// FindVersion 查找指定版本号
func (p *Package) FindVersion(v string) *PackageVersion {
	for i := range p.Versions {
		if p.Versions[i].Version == v {
			return &p.Versions[i]
		}
	}
	return nil
}

// PackageVersion 包版本模型
type PackageVersion struct {
	ID        uint `gorm:"primaryKey" json:"-"`
	PackageID uint `gorm:"not null;uniqueIndex:idx_package_versions_pkg_ver,priority:1" json:"-"`

	Version       string    `gorm:"size:20;not null;uniqueIndex:idx_package_versions_pkg_ver,priority:2" json:"version"`
	Integrity     string    `gorm:"size:100;not null" json:"integrity"` // sha256-<hex>
	Tarball       string    `gorm:"size:500;not null" json:"tarball"`   // 存储文件名
	UploadTime    time.Time `gorm:"not null" json:"uploadTime"`
	DownloadCount int64     `gorm:"not null;default:0" json:"downloadCount"`

	Dependencies []Dependency `gorm:"foreignKey:PackageVersionID" json:"dependencies"`
}

// TableName 指定表名
func (PackageVersion) TableName() string {
	return "package_versions"
}

// Less 按语义化版本比较，无法解析时退回字符串比较
func (v *PackageVersion) Less(other *PackageVersion) bool {
	a, errA := version.NewVersion(v.Version)
	b, errB := version.NewVersion(other.Version)
	if errA != nil || errB != nil {
		return v.Version < other.Version
	}
	return a.LessThan(b)
}

// Dependency 依赖项模型
// NormalizedName 是被依赖包规范名称的冗余副本，仅用于展示
type Dependency struct {
	ID               uint `gorm:"primaryKey" json:"-"`
	PackageVersionID uint `gorm:"not null;index" json:"-"`

	DependencyID   uint   `gorm:"not null;index" json:"id"`
	NormalizedName string `gorm:"size:100;not null" json:"normalizedName"`
	MinVersion     string `gorm:"size:20;not null" json:"minVersion"`
}

// TableName 指定表名
func (Dependency) TableName() string {
	return "dependencies"
}

// UpdateTime 包列表最后修改时间，全表仅一行
type UpdateTime struct {
	ID                  uint      `gorm:"primaryKey;autoIncrement:false" json:"-"`
	PackageLastModified time.Time `gorm:"not null" json:"packageLastModified"`
}

// UpdateTimeID 唯一一行的主键
const UpdateTimeID = 1

// TableName 指定表名
func (UpdateTime) TableName() string {
	return "update_times"
}

// PackageIDSequenceName PostgreSQL 下使用的原生包序号序列
const PackageIDSequenceName = "package_id_seq"

// PackageIDSequence 包序号序列表，用于不支持原生序列的数据库
type PackageIDSequence struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName 指定表名
func (PackageIDSequence) TableName() string {
	return "package_id_sequences"
}
