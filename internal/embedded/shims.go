package embedded

// schedulerJS routes timer-style scheduling into the host job queue.
// Delays are ignored; ordering is FIFO enqueue order.
const schedulerJS = `
globalThis.setTimeout = function(fn) {
	var args = Array.prototype.slice.call(arguments, 2);
	__host_enqueue(function() { fn.apply(undefined, args); });
	return 0;
};
globalThis.clearTimeout = function() {};
globalThis.setInterval = function() { return 0; };
globalThis.clearInterval = function() {};
globalThis.setImmediate = function(fn) {
	var args = Array.prototype.slice.call(arguments, 1);
	__host_enqueue(function() { fn.apply(undefined, args); });
	return 0;
};
globalThis.clearImmediate = function() {};
globalThis.queueMicrotask = function(fn) { __host_enqueue(fn); };
`

// nodeGlobalsJS defines the ambient globals bundled policy code
// references without importing. Intentionally partial: it satisfies
// shape expectations, not full semantics.
const nodeGlobalsJS = `
if (typeof globalThis.global === "undefined") {
	globalThis.global = globalThis;
}

if (typeof globalThis.__dirname === "undefined") {
	var __cwd = typeof __process_cwd === "function" ? __process_cwd() : "/";
	globalThis.__dirname = __cwd;
	globalThis.__filename = __cwd + "/bundle.js";
}

globalThis.process = {
	version: "v20.0.0",
	versions: { node: "20.0.0", v8: "0.0.0", modules: "0" },
	platform: "linux",
	arch: "x64",
	env: {},
	argv: ["/usr/bin/node", "repopo"],
	argv0: "node",
	execPath: "/usr/bin/node",
	execArgv: [],
	cwd: typeof __process_cwd === "function" ? __process_cwd : function() { return "/"; },
	chdir: function() {},
	exit: function() {},
	abort: function() {},
	umask: function() { return 18; },
	getuid: function() { return 1000; },
	getgid: function() { return 1000; },
	hrtime: Object.assign(
		function() { return [0, 0]; },
		{ bigint: function() { return 0; } }
	),
	memoryUsage: function() { return { rss: 0, heapTotal: 0, heapUsed: 0, external: 0, arrayBuffers: 0 }; },
	cpuUsage: function() { return { user: 0, system: 0 }; },
	uptime: function() { return 0; },
	stdout: { write: function() { return true; }, isTTY: false },
	stderr: { write: typeof __stderr_write === "function" ? __stderr_write : function() { return true; }, isTTY: false },
	stdin: { isTTY: false },
	on: function() { return globalThis.process; },
	off: function() { return globalThis.process; },
	once: function() { return globalThis.process; },
	emit: function() { return false; },
	addListener: function() { return globalThis.process; },
	removeListener: function() { return globalThis.process; },
	removeAllListeners: function() { return globalThis.process; },
	listeners: function() { return []; },
	listenerCount: function() { return 0; },
	pid: 1,
	ppid: 0,
	title: "repopo",
	nextTick: function(fn) {
		var args = Array.prototype.slice.call(arguments, 1);
		fn.apply(undefined, args);
	},
	config: { variables: {} },
	release: { name: "node" },
};

if (typeof globalThis.URL === "undefined") {
	globalThis.URL = function URL(url, base) {
		var full = url;
		if (base && url.indexOf("://") === -1) {
			full = base.replace(/\/$/, "") + "/" + url.replace(/^\//, "");
		}
		this.href = full;
		var match = full.match(/^(\w+:)\/\/([^/?#]*)(\/[^?#]*)?(\?[^#]*)?(#.*)?$/);
		this.protocol = match ? match[1] : "";
		this.host = match ? match[2] : "";
		this.hostname = this.host.split(":")[0];
		this.port = this.host.indexOf(":") !== -1 ? this.host.split(":")[1] : "";
		this.pathname = match ? (match[3] || "/") : full;
		this.search = match ? (match[4] || "") : "";
		this.hash = match ? (match[5] || "") : "";
		this.origin = this.protocol + "//" + this.host;
		this.searchParams = new Map();
	};
	globalThis.URL.prototype.toString = function() { return this.href; };
}

if (typeof globalThis.Buffer === "undefined") {
	globalThis.Buffer = {
		from: function(x) {
			return {
				toString: function() { return String(x); },
				length: typeof x === "string" ? x.length : 0,
			};
		},
		alloc: function(n) { return { length: n, toString: function() { return ""; } }; },
		isBuffer: function() { return false; },
		concat: function(list) { return list[0] || { toString: function() { return ""; }, length: 0 }; },
	};
}
`
