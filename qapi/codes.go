// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qapi

// ResourceType identifies the kind of resource a Message addresses.
type ResourceType uint64

const (
	ResourcePing           ResourceType = 0
	ResourceEntity         ResourceType = 1
	ResourceFeed           ResourceType = 2
	ResourceControl        ResourceType = 3
	ResourceSubscription   ResourceType = 4
	ResourceEntityMeta     ResourceType = 5
	ResourceFeedMeta       ResourceType = 6
	ResourceControlMeta    ResourceType = 7
	ResourceValueMeta      ResourceType = 8
	ResourceEntityTagMeta  ResourceType = 9
	ResourceFeedTagMeta    ResourceType = 10
	ResourceControlTagMeta ResourceType = 11

	// 12 was a value tag meta resource, since removed from the QAPI.

	ResourceSearch   ResourceType = 13
	ResourceDescribe ResourceType = 14
)

func (rt ResourceType) String() string {
	switch rt {
	case ResourcePing:
		return "ping"
	case ResourceEntity:
		return "entity"
	case ResourceFeed:
		return "feed"
	case ResourceControl:
		return "control"
	case ResourceSubscription:
		return "subscription"
	case ResourceEntityMeta:
		return "entity-meta"
	case ResourceFeedMeta:
		return "feed-meta"
	case ResourceControlMeta:
		return "control-meta"
	case ResourceValueMeta:
		return "value-meta"
	case ResourceEntityTagMeta:
		return "entity-tag-meta"
	case ResourceFeedTagMeta:
		return "feed-tag-meta"
	case ResourceControlTagMeta:
		return "control-tag-meta"
	case ResourceSearch:
		return "search"
	case ResourceDescribe:
		return "describe"
	default:
		return "unknown"
	}
}

// MessageType classifies a Message as a request outcome or an event.
type MessageType uint64

const (
	TypeComplete       MessageType = 1
	TypeProgress       MessageType = 2
	TypeFailed         MessageType = 3
	TypeCreated        MessageType = 4
	TypeDuplicated     MessageType = 5
	TypeDeleted        MessageType = 6
	TypeFeedData       MessageType = 7
	TypeControlRequest MessageType = 8
	TypeSubscribed     MessageType = 9
	TypeRenamed        MessageType = 10
	TypeReassigned     MessageType = 11
	TypeRecentData     MessageType = 12
)

func (mt MessageType) String() string {
	switch mt {
	case TypeComplete:
		return "complete"
	case TypeProgress:
		return "progress"
	case TypeFailed:
		return "failed"
	case TypeCreated:
		return "created"
	case TypeDuplicated:
		return "duplicated"
	case TypeDeleted:
		return "deleted"
	case TypeFeedData:
		return "feed-data"
	case TypeControlRequest:
		return "control-request"
	case TypeSubscribed:
		return "subscribed"
	case TypeRenamed:
		return "renamed"
	case TypeReassigned:
		return "reassigned"
	case TypeRecentData:
		return "recent-data"
	default:
		return "unknown"
	}
}

// Progress codes, carried in the payload of a TypeProgress Message.
const (
	ProgressAccepted    uint64 = 1
	ProgressRemoteDelay uint64 = 2
	ProgressUpdate      uint64 = 3
)

// ActionType is the operation requested from the remote platform.
type ActionType uint64

const (
	ActionCreate ActionType = 1
	ActionUpdate ActionType = 2
	ActionDelete ActionType = 3
	ActionList   ActionType = 4
)

func (at ActionType) String() string {
	switch at {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	case ActionList:
		return "list"
	default:
		return "unknown"
	}
}

// FailureCode is the closed taxonomy carried in a TypeFailed payload.
type FailureCode uint64

const (
	FailureNotAllowed    FailureCode = 1
	FailureUnknown       FailureCode = 2
	FailureMalformed     FailureCode = 3
	FailureDuplicate     FailureCode = 4
	FailureInternalError FailureCode = 5
	FailureLowSeqNum     FailureCode = 6
	FailureAccessDenied  FailureCode = 7
)

func (fc FailureCode) String() string {
	switch fc {
	case FailureNotAllowed:
		return "not-allowed"
	case FailureUnknown:
		return "unknown"
	case FailureMalformed:
		return "malformed"
	case FailureDuplicate:
		return "duplicate"
	case FailureInternalError:
		return "internal-error"
	case FailureLowSeqNum:
		return "low-sequence-number"
	case FailureAccessDenied:
		return "access-denied"
	default:
		return "undefined"
	}
}
