// Package uevent はudevのホットプラグ通知とデバイス列挙を提供する
//
// # 責務
// - netlink (NETLINK_KOBJECT_UEVENT) ソケットによるイベント受信
// - udevデーモンが配信するメッセージのデコード
// - sysfs と udev データベースによる既存デバイスの列挙
//
// # 仕様
// - cgo (libudev) を使わず golang.org/x/sys/unix で直接受信する
// - udevモニターグループとカーネルグループの両方を購読する
// - プロパティ (ID_V4L_VERSION 等) はudevイベントにのみ含まれる
package uevent

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
)

// udevデーモンのメッセージヘッダ定数（libudev-monitor.c 準拠）
const (
	libudevPrefix = "libudev\x00"
	libudevMagic  = 0xfeedcafe
)

// Device はホットプラグイベントまたは列挙で得られたデバイス記述子を表す。
// Action は "add"・"remove" 等。列挙で得られた場合は空になる
type Device struct {
	Action     string
	SysPath    string // sysfs 上のデバイスパス（削除イベントとの照合キー）
	Subsystem  string
	Properties map[string]string
}

// Property はプロパティ値を返す。未設定の場合は空文字列
func (d Device) Property(key string) string {
	return d.Properties[key]
}

// PropertyInt はプロパティ値を整数として返す。
// 未設定・数値でない場合は 0（g_udev_device_get_property_as_int と同様）
func (d Device) PropertyInt(key string) int {
	n, err := strconv.Atoi(d.Properties[key])
	if err != nil {
		return 0
	}
	return n
}

// DevNode はデバイスノードのパスを返す。DEVNAME が相対表記の場合は
// /dev を前置する。ノードを持たないデバイスでは空文字列
func (d Device) DevNode() string {
	name := d.Properties["DEVNAME"]
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/dev/" + name
}

// parseMessage はnetlinkで受信した1メッセージをデコードする。
// udevデーモン形式とカーネル形式の両方に対応する
func parseMessage(buf []byte) (Device, bool) {
	if len(buf) == 0 {
		return Device{}, false
	}

	if bytes.HasPrefix(buf, []byte(libudevPrefix)) {
		return parseUdevMessage(buf)
	}
	return parseKernelMessage(buf)
}

// parseUdevMessage はudevデーモンが配信するバイナリヘッダ付き形式を
// デコードする
func parseUdevMessage(buf []byte) (Device, bool) {
	// prefix(8) + magic(4) + header_size(4) + properties_off(4) +
	// properties_len(4) + フィルタ用フィールド(16)
	if len(buf) < 40 {
		return Device{}, false
	}
	if binary.BigEndian.Uint32(buf[8:12]) != libudevMagic {
		return Device{}, false
	}

	off := binary.LittleEndian.Uint32(buf[16:20])
	length := binary.LittleEndian.Uint32(buf[20:24])
	if uint64(off)+uint64(length) > uint64(len(buf)) {
		return Device{}, false
	}

	return deviceFromProperties(parseProperties(buf[off : off+length]))
}

// parseKernelMessage はカーネルが直接送出する "action@devpath\0KEY=VAL..."
// 形式をデコードする
func parseKernelMessage(buf []byte) (Device, bool) {
	segments := bytes.Split(buf, []byte{0})
	if len(segments) == 0 {
		return Device{}, false
	}

	header := string(segments[0])
	if !strings.Contains(header, "@") {
		return Device{}, false
	}

	props := parseProperties(bytes.Join(segments[1:], []byte{0}))
	return deviceFromProperties(props)
}

// parseProperties はNUL区切りの KEY=VAL 列をマップに変換する
func parseProperties(buf []byte) map[string]string {
	props := make(map[string]string)
	for _, entry := range bytes.Split(buf, []byte{0}) {
		if len(entry) == 0 {
			continue
		}
		key, value, found := strings.Cut(string(entry), "=")
		if !found || key == "" {
			continue
		}
		props[key] = value
	}
	return props
}

// deviceFromProperties はプロパティマップから記述子を組み立てる
func deviceFromProperties(props map[string]string) (Device, bool) {
	devPath := props["DEVPATH"]
	if devPath == "" {
		return Device{}, false
	}

	return Device{
		Action:     props["ACTION"],
		SysPath:    "/sys" + devPath,
		Subsystem:  props["SUBSYSTEM"],
		Properties: props,
	}, true
}
