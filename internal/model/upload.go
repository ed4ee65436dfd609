package model

import "strings"

// UploadDescriptor 上传包时客户端提交的包信息（packageInfoJson）
type UploadDescriptor struct {
	Name           string             `json:"name" validate:"required,notblank,max=100,pkgname"`
	NormalizedName string             `json:"normalizedName" validate:"required,notblank,max=100,normname"`
	Description    *string            `json:"description" validate:"omitempty,max=128"`
	Arch           string             `json:"arch" validate:"required,arch"`
	Version        string             `json:"version" validate:"required,max=20,pkgversion"`
	Dependencies   []UploadDependency `json:"dependencies" validate:"omitempty,unique=ID,dive"`
	Integrity      string             `json:"integrity" validate:"required,integrity"`
	Author         string             `json:"author" validate:"required,notblank,max=50"`
	License        *string            `json:"license" validate:"omitempty,max=50"`
	Repository     *string            `json:"repository" validate:"omitempty,max=200,url"`
	Homepage       *string            `json:"homepage" validate:"omitempty,max=200,url"`
}

// UploadDependency 上传包信息中的依赖项
type UploadDependency struct {
	ID             uint   `json:"id" validate:"required"`
	NormalizedName string `json:"normalizedName" validate:"required,max=100,normname"`
	MinVersion     string `json:"minVersion" validate:"required,max=20,pkgversion"`
}

// IntegrityPrefix 校验值的算法前缀
const IntegrityPrefix = "sha256-"

// DeclaredDigest 返回去掉算法前缀并转为小写的十六进制摘要
func (d *UploadDescriptor) DeclaredDigest() string {
	return strings.ToLower(strings.TrimPrefix(d.Integrity, IntegrityPrefix))
}

// ToDependencies 转换为依赖项模型
func (d *UploadDescriptor) ToDependencies() []Dependency {
	deps := make([]Dependency, 0, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		deps = append(deps, Dependency{
			DependencyID:   dep.ID,
			NormalizedName: dep.NormalizedName,
			MinVersion:     dep.MinVersion,
		})
	}
	return deps
}
