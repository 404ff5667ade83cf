package models

import (
	"time"
)

// Character is a user-defined AI persona.
type Character struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Avatar        string     `json:"avatar,omitempty"`
	Policy        string     `json:"policy"`
	LastMessage   string     `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
}

type CreateCharacterRequest struct {
	Name   string `json:"name" binding:"required"`
	Avatar string `json:"avatar"`
	Policy string `json:"policy"`
}

// UpdateCharacterRequest carries optional fields; nil means unchanged.
type UpdateCharacterRequest struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
	Policy *string `json:"policy"`
}

// Group is a multi-character chat room. MemberIDs keeps speaking order.
type Group struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	MemberIDs     []string   `json:"memberIds"`
	AutoReply     bool       `json:"autoReply"`
	AutoParallel  bool       `json:"autoParallel"`
	Avatar        string     `json:"avatar,omitempty"`
	LastMessage   string     `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
}

type CreateGroupRequest struct {
	Name         string   `json:"name" binding:"required"`
	MemberIDs    []string `json:"memberIds"`
	AutoReply    *bool    `json:"autoReply"`
	AutoParallel bool     `json:"autoParallel"`
	Avatar       string   `json:"avatar"`
}

type UpdateGroupRequest struct {
	Name         *string   `json:"name"`
	MemberIDs    *[]string `json:"memberIds"`
	AutoReply    *bool     `json:"autoReply"`
	AutoParallel *bool     `json:"autoParallel"`
	Avatar       *string   `json:"avatar"`
}

// SidebarEntry is one row of the chat list, either a character or a group.
type SidebarEntry struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	Name          string     `json:"name"`
	Avatar        string     `json:"avatar,omitempty"`
	LastMessage   string     `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	Unread        int        `json:"unread"`
}

const (
	KindCharacter = "character"
	KindGroup     = "group"
)
