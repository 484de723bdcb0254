package frida

import (
	"context"
	"errors"
)

// ErrNoPackageInfo agent 正常结束但没有返回 PackageInfo
var ErrNoPackageInfo = errors.New("agent returned no package info")

// PackageInfo 目标应用的 android.content.pm.PackageInfo 摘要
type PackageInfo struct {
	PackageName      string `json:"packageName"`
	VersionName      string `json:"versionName"`
	VersionCode      int64  `json:"versionCode"`
	MinSdkVersion    int    `json:"minSdkVersion"` // API 24 以下为 0
	TargetSdkVersion int    `json:"targetSdkVersion"`
	FirstInstallTime int64  `json:"firstInstallTime"` // Unix 毫秒
	LastUpdateTime   int64  `json:"lastUpdateTime"`
	SourceDir        string `json:"sourceDir"`
	DataDir          string `json:"dataDir"`
}

// PackageInfo 通过 ActivityThread.currentApplication() 取得应用上下文，
// 再经 PackageManager.getPackageInfo 读取目标应用的包信息
func (r *Runtime) PackageInfo(ctx context.Context) (PackageInfo, error) {
	msgs, err := r.eval(ctx, agentPackage, agentData{})
	if err != nil {
		return PackageInfo{}, err
	}
	for _, m := range msgs {
		if m.Type == MessagePackage && m.Package != nil {
			return *m.Package, nil
		}
	}
	return PackageInfo{}, ErrNoPackageInfo
}
